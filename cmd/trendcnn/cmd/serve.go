package cmd

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ldsec/trendCNN/common"
	"github.com/ldsec/trendCNN/config"
	"github.com/ldsec/trendCNN/model"
	"github.com/ldsec/trendCNN/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.dedis.ch/onet/v3/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve predictions of a saved model over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		m, err := model.Load(cfg.Output.ModelFile)
		if err != nil {
			return err
		}
		if cfg.Debug < 2 {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: server.Router(server.NewHandler(m))}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()

		log.Lvl1("serving model", m.Metadata.RunID, "on", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "write a synthetic labelled npz file with trending windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("samples")
		noise, _ := cmd.Flags().GetFloat64("noise")
		return runGenerate(cfg, n, noise)
	},
}

func init() {
	defaults := config.Default()
	modelFlag(serveCmd.Flags(), defaults)
	serveCmd.Flags().String("addr", defaults.Server.Addr, "listen address")

	dataFlags(generateCmd.Flags(), defaults)
	generateCmd.Flags().Int("samples", 600, "number of windows")
	generateCmd.Flags().Float64("noise", 0.1, "standard deviation of the added noise")
	generateCmd.Flags().Int64("seed", defaults.Train.Seed, "random seed")
}

func runGenerate(cfg config.Config, n int, noise float64) error {
	if n <= 0 {
		return common.ErrEmptyDataset
	}
	rng := rand.New(rand.NewSource(cfg.Train.Seed))
	dataset := common.Synthetic(n, cfg.Data.WindowSize, cfg.Data.Features, noise, rng)
	if err := loader(cfg).Save(dataset); err != nil {
		return err
	}
	log.Lvlf1("wrote %d windows to %s", n, cfg.Data.Path)
	return nil
}
