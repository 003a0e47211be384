package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/hashicorp/hcl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/anchor/anchor"
	"github.com/leftmike/anchor/kv"
)

var (
	anchorCmd = &cobra.Command{
		Use:   "anchor",
		Short: "A transactional key-value store",
		Long: "Anchor runs transactions against an embedded, ordered key-value store, one " +
			"thread per transaction.",
		PersistentPreRunE: anchorPreRun,
		PersistentPostRun: anchorPostRun,
		SilenceUsage:      true,
	}

	logFile   = "anchor.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "anchor.hcl"
	noConfig   = false

	dataDir     = "data"
	engine      = "bbolt"
	mapSize     = "60GB"
	createDir   = true
	fileMode    = "0600"
	idleTimeout = anchor.DefaultIdleTimeout

	cfgVars   = map[string]*pflag.Flag{}
	cfg       = map[string]interface{}{}
	usedFlags = map[string]struct{}{}
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := anchorCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfgVars["log-file"] = fs.Lookup("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfgVars["log-level"] = fs.Lookup("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")

	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the store")
	cfgVars["data"] = fs.Lookup("data")

	fs.StringVar(&engine, "engine", engine,
		"storage engine: "+strings.Join(kv.Engines, ", "))
	cfgVars["engine"] = fs.Lookup("engine")

	fs.StringVar(&mapSize, "map-size", mapSize, "maximum `size` of the store, such as 1GB")
	cfgVars["map-size"] = fs.Lookup("map-size")

	fs.BoolVar(&createDir, "create-dir", createDir, "create the data directory if missing")
	cfgVars["create-dir"] = fs.Lookup("create-dir")

	fs.StringVar(&fileMode, "mode", fileMode, "octal file `mode` for new store files")
	cfgVars["mode"] = fs.Lookup("mode")

	fs.DurationVar(&idleTimeout, "idle-timeout", idleTimeout,
		"abort a transaction after `duration` without a command; negative waits forever")
	cfgVars["idle-timeout"] = fs.Lookup("idle-timeout")
}

func Execute() error {
	return anchorCmd.Execute()
}

func anchorPreRun(cmd *cobra.Command, args []string) error {
	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			usedFlags[flg.Name] = struct{}{}
		})

	if configFile != "" && !noConfig {
		err := loadConfig()
		if err != nil {
			return fmt.Errorf("anchor: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("anchor: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("anchor: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("anchor starting")
	return nil
}

func anchorPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("anchor done")

	if logWriter != nil {
		logWriter.Close()
	}
}

// loadConfig sets every config variable in configFile which was not given as a flag. A
// missing default config file is not an error.
func loadConfig() error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			if _, ok := usedFlags["config-file"]; !ok {
				return nil
			}
		}
		return err
	}

	return decodeConfig(string(b))
}

func decodeConfig(s string) error {
	err := hcl.Decode(&cfg, s)
	if err != nil {
		return err
	}

	for name, val := range cfg {
		flg, ok := cfgVars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if flg == nil {
			continue
		}
		if _, ok := usedFlags[flg.Name]; ok {
			continue
		}

		if vals, ok := val.([]interface{}); ok {
			var strs []string
			for _, v := range vals {
				strs = append(strs, fmt.Sprintf("%v", v))
			}
			err = flg.Value.Set(strings.Join(strs, ","))
		} else {
			err = flg.Value.Set(fmt.Sprintf("%v", val))
		}
		if err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}

	return nil
}

func envOptions() (anchor.Options, error) {
	maxSize, err := units.FromHumanSize(mapSize)
	if err != nil {
		return anchor.Options{}, fmt.Errorf("anchor: map-size: %s", err)
	}
	if maxSize <= 0 {
		return anchor.Options{}, fmt.Errorf("anchor: map-size: must be positive: %s", mapSize)
	}

	mode, err := strconv.ParseUint(fileMode, 8, 32)
	if err != nil {
		return anchor.Options{}, fmt.Errorf("anchor: mode: %s", err)
	}

	return anchor.Options{
		Path:        dataDir,
		Engine:      engine,
		MaxSize:     maxSize,
		CreateDir:   createDir,
		Mode:        os.FileMode(mode),
		IdleTimeout: idleTimeout,
		Logger:      log.StandardLogger(),
	}, nil
}

func openEnv() (*anchor.Env, error) {
	opts, err := envOptions()
	if err != nil {
		return nil, err
	}

	env, err := anchor.Open(opts)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"data":     dataDir,
		"engine":   engine,
		"map-size": units.HumanSize(float64(opts.MaxSize)),
	}).Info("store opened")
	return env, nil
}
