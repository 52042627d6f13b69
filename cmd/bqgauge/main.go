// cmd/bqgauge/main.go
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"gaugecode-go/drivers/bq34z100"
	"gaugecode-go/internal/periphi2c"
	"gaugecode-go/services/gauge"
)

func main() {
	app := cli.NewApp()

	// base application info
	app.Name = "bqgauge"
	app.Version = "0.1.0"
	app.Usage = "configure and calibrate a bq34z100 fuel gauge over I2C"

	// flags
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "./configs/bqgauge.toml",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "bus, b",
			Usage: "I2C bus name, overrides bus.name",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}

	app.Before = setup
	app.Commands = commands()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(c *cli.Context) error {
	viper.SetConfigType("toml")
	viper.SetConfigFile(c.String("config"))
	viper.SetDefault("bus.name", "")
	viper.SetDefault("bus.speed_khz", 100)
	viper.SetDefault("gauge.name", "main")
	viper.SetDefault("gauge.address", bq34z100.AddressDefault)
	viper.SetDefault("gauge.sample_every_ms", 5000)
	if err := viper.ReadInConfig(); err != nil {
		// A missing file leaves the defaults in place.
		log.WithError(err).Debug("config not loaded")
	}
	if b := c.String("bus"); b != "" {
		viper.Set("bus.name", b)
	}

	log.SetFormatter(&log.TextFormatter{DisableColors: true})
	if viper.GetBool("core.debug") || c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// params reads the gauge section of the configuration.
func params() gauge.Params {
	return gauge.Params{
		Name:          viper.GetString("gauge.name"),
		Addr:          viper.GetInt("gauge.address"),
		SampleEveryMS: viper.GetInt("gauge.sample_every_ms"),
		PollLimit:     viper.GetInt("gauge.poll_limit"),
		SampleCount:   viper.GetInt("gauge.sample_count"),
		NoiseLimit:    viper.GetFloat64("gauge.noise_limit"),
	}
}

// openGauge initialises the host drivers, opens the configured bus and
// returns a device handle with a release func.
func openGauge() (*bq34z100.Device, func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Wrap(err, "init host drivers")
	}
	name := viper.GetString("bus.name")
	speed := physic.Frequency(viper.GetInt("bus.speed_khz")) * physic.KiloHertz
	b, err := periphi2c.Open(name, speed)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	cfg := params().DriverConfig()
	if err := cfg.Validate(); err != nil {
		b.Close()
		return nil, nil, errors.Wrap(err, "gauge config")
	}
	log.WithFields(log.Fields{"bus": b.String(), "addr": cfg.Address}).Debug("gauge opened")
	return bq34z100.New(b, cfg), func() { b.Close() }, nil
}

// withGauge runs fn with an opened device and a context cancelled on ^C.
func withGauge(fn func(ctx context.Context, c *cli.Context, dev *bq34z100.Device) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		dev, release, err := openGauge()
		if err != nil {
			return err
		}
		defer release()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return fn(ctx, c, dev)
	}
}
