// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package main

import "github.com/claspvr/claspd/cmd/claspd/commands"

func main() {
	commands.Execute()
}
