// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/claspvr/claspd/pkg/server"
)

// Exit status used when the server cannot bind its listen address, so
// supervisors can tell a bad address apart from a runtime crash.
const exitStatusListenFailed = 100

var (
	log        *logrus.Logger
	disableTLS bool
	noAutoRoom bool
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the claspd server",
	Run:   runServer,
}

func init() {
	RootCmd.AddCommand(startCmd)

	startCmd.Flags().StringP("bind", "b", "127.0.0.1:24567", "Bind the server to host:port. Leave host empty to bind to all interfaces.")
	viper.BindPFlag("server.bind", startCmd.Flags().Lookup("bind"))
	startCmd.Flags().BoolVar(&noAutoRoom, "no-auto-room", false, "Overrides config option to place new connections in a private room automatically")
	startCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "Overrides config option to enable TLS")

	viper.SetDefault("server.autoCreateRoom", true)
	viper.SetDefault("server.eagerRoomGC", false)
	viper.SetDefault("server.statsPassword", "")
	viper.SetDefault("server.assetsDir", "")
	viper.SetDefault("tls.useTls", false)
}

func runServer(cmd *cobra.Command, args []string) {
	log = logrus.New()
	log.Out = os.Stderr
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.DebugLevel

	srv := server.New(log, server.Options{
		AutoCreateRoom: viper.GetBool("server.autoCreateRoom") && !noAutoRoom,
		EagerRoomGC:    viper.GetBool("server.eagerRoomGC"),
		StatsPassword:  viper.GetString("server.statsPassword"),
		AssetsDir:      os.ExpandEnv(viper.GetString("server.assetsDir")),
	})

	bindAddr := viper.GetString("server.bind")
	certFile := os.ExpandEnv(viper.GetString("tls.certFile"))
	keyFile := os.ExpandEnv(viper.GetString("tls.keyFile"))
	useTLS := viper.GetBool("tls.useTls")

	log.Info("Starting claspd")
	var err error
	if useTLS && !disableTLS {
		err = srv.ListenAndServeTLS(bindAddr, certFile, keyFile)
	} else {
		err = srv.ListenAndServe(bindAddr)
	}
	log.Error(err)
	os.Exit(exitStatusListenFailed)
}
