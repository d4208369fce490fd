package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"poker-league/config"

	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"LEAGUE_CONFIG",
	"LEAGUE_ADDR",
	"LEAGUE_DATABASE_URL",
	"LEAGUE_STREAM_INTERVAL_MS",
	"LEAGUE_SWEEP_INTERVAL_MS",
	"LEAGUE_AUTO_START_CLOCK",
	"LEAGUE_NOTIFY_URL",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "league-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.So(cfg.Addr, convey.ShouldEqual, ":5200")
		convey.So(cfg.StreamIntervalMS, convey.ShouldEqual, 1000)
		convey.So(cfg.AutoStartClock, convey.ShouldBeTrue)
		convey.So(cfg.R2Enabled(), convey.ShouldBeFalse)
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":5200")
			convey.So(cfg.SweepIntervalMS, convey.ShouldEqual, 5000)
		})

		convey.Convey("When environment variables are set", func() {
			_ = os.Setenv("LEAGUE_ADDR", ":8080")
			_ = os.Setenv("LEAGUE_DATABASE_URL", "postgres://league@localhost/league")
			_ = os.Setenv("LEAGUE_STREAM_INTERVAL_MS", "250")
			_ = os.Setenv("LEAGUE_AUTO_START_CLOCK", "false")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, "postgres://league@localhost/league")
				convey.So(cfg.StreamIntervalMS, convey.ShouldEqual, 250)
				convey.So(cfg.AutoStartClock, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a YAML file and env vars are both given", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
sweep_interval_ms: 2000
notify_url: "http://push.local/notify"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LEAGUE_CONFIG", tmpFile)
			_ = os.Setenv("LEAGUE_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.SweepIntervalMS, convey.ShouldEqual, 2000)
				convey.So(cfg.NotifyURL, convey.ShouldEqual, "http://push.local/notify")
				convey.So(cfg.StreamIntervalMS, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When the YAML file is missing", func() {
			_ = os.Setenv("LEAGUE_CONFIG", "/non/existent/league.yaml")

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric variable is malformed", func() {
			_ = os.Setenv("LEAGUE_STREAM_INTERVAL_MS", "soon")

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the stream interval is not positive", func() {
			_ = os.Setenv("LEAGUE_STREAM_INTERVAL_MS", "0")

			cfg, err := config.Load(ctx)

			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
