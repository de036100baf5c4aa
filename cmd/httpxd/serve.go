package httpxd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mistnet/httpx/confx"
	"github.com/mistnet/httpx/internal/httpx"
	"github.com/mistnet/httpx/logx"
	"github.com/mistnet/httpx/router"
	"github.com/mistnet/httpx/server"
	"github.com/mistnet/httpx/sigs"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP server from a configuration file",
	Example: "# httpxd serve --config httpxd.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := confx.LoadPath(serveConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		var logOpt logx.Options
		if conf.Has("logging") {
			if err := conf.UnpackChild("logging", &logOpt); err != nil {
				fmt.Fprintf(os.Stderr, "failed to unpack logging config: %v\n", err)
				os.Exit(1)
			}
		}
		logx.SetOptions(logOpt)
		log := logx.Std()

		var srvCfg server.Config
		if err := conf.UnpackChild("server", &srvCfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unpack server config: %v\n", err)
			os.Exit(1)
		}

		mux := router.New()
		mux.HandleFunc("/healthz", func(req *httpx.Request, res *httpx.Response) {
			_ = res.Send([]byte("ok"))
		})

		handler := server.HandlerFunc(mux.Serve)
		srv := server.New(srvCfg, handler, log)

		listening, err := srv.Listen(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
			os.Exit(1)
		}

		log.Infof("httpxd serving on %s", listening.Addr)
		<-sigs.Terminate()
		log.Infof("shutting down")
		_ = listening.Close()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "httpxd.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
