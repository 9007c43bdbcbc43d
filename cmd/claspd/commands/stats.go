// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/claspvr/claspd/pkg/server"
)

var (
	statsPort              string
	skipTLSVerification    bool
	statsServerCertificate string
	statsPassword          string
	promptForPassword      bool
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats [host]",
	Short: "Print stats from a claspd server",
	Long: `stats queries a claspd server for running stats.

If the host is omitted, the local claspd server will be queried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := "127.0.0.1"
		if len(args) > 0 {
			host = args[0]
			if disableTLS {
				fmt.Fprintln(os.Stderr, "Warning: TLS is disabled. All traffic including your stats password will be sent in the clear.")
			} else if skipTLSVerification {
				fmt.Fprintln(os.Stderr, "Warning: skipping TLS verification is insecure.")
			}
		} else {
			// Use the options from the local server's configuration.
			if _, port, err := net.SplitHostPort(viper.GetString("server.bind")); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot determine local server port from config; using \"%s\"\n", statsPort)
			} else {
				statsPort = port
			}
			disableTLS = !viper.GetBool("tls.useTls")
			skipTLSVerification = true
			statsPassword = viper.GetString("server.statsPassword")
			if !disableTLS {
				fmt.Fprintln(os.Stderr, "Skipping TLS verification for local server query")
			}
		}
		return getStats(host)
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsPort, "port", "P", "24567", "port of the server to query stats for")
	statsCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "disable connecting over TLS")
	statsCmd.Flags().BoolVarP(&skipTLSVerification, "no-tls-verify", "n", false, "skip TLS verification\n    This is insecure, an attacker can get your password, and you should only use this for testing")
	statsCmd.Flags().StringVarP(&statsServerCertificate, "server-certificate", "s", "", "file containing the PEM encoded certificate to use for server verification, instead of the system's certificate store")
	statsCmd.Flags().BoolVarP(&promptForPassword, "prompt-for-password", "p", false, "prompt for the server's stats password\n    If unset, the password is the same as the local server's.")

	viper.SetDefault("server.statsPassword", "")
}

func getStats(statsHost string) error {
	if promptForPassword {
		fmt.Printf("Password: ")
		pass, err := gopass.GetPasswd()
		if err != nil {
			return err
		}
		statsPassword = string(pass)
	}

	if statsPassword == "" {
		statsPassword = os.Getenv("CLASPD_STATS_PASSWORD")
	}

	if statsPassword == "" {
		return errors.New("A stats password is required")
	}

	scheme := "https"
	transport := http.DefaultTransport
	if disableTLS {
		scheme = "http"
	} else {
		var certPool *x509.CertPool
		if statsServerCertificate != "" {
			cert, err := os.ReadFile(statsServerCertificate)
			if err != nil {
				return errors.Wrap(err, "Open server certificate")
			}
			certPool = x509.NewCertPool()
			certPool.AppendCertsFromPEM(cert)
		}
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: skipTLSVerification,
				RootCAs:            certPool,
			},
		}
	}

	statsAddr := net.JoinHostPort(statsHost, statsPort)
	req, err := http.NewRequest(http.MethodGet, scheme+"://"+statsAddr+"/stats", nil)
	if err != nil {
		return errors.Wrap(err, "Build stats request")
	}
	req.Header.Set("X-Stats-Password", statsPassword)

	client := &http.Client{Transport: transport, Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "Connect to claspd server")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return errors.New("Server rejected the stats password")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Server returned an error: %s", resp.Status)
	}

	var stats server.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return errors.Wrap(err, "Get stats response from server")
	}

	// Don't display the default port in the output.
	friendlyAddr := statsHost
	if statsPort != "24567" {
		friendlyAddr = statsAddr
	}
	fmt.Printf(`Stats for %s:
Uptime: %s
Number of rooms: %d
Max rooms: %d on %s

Number of connections: %d
Max connections: %d on %s
`, friendlyAddr, stats.Uptime,
		stats.NumRooms,
		stats.MaxRooms, stats.MaxRoomsAt,
		stats.NumConnections,
		stats.MaxConnections, stats.MaxConnectionsAt)
	return nil
}
