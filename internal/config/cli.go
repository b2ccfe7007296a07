// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"

	"github.com/jessevdk/go-flags"
)

// Options are the command-line flags. Zero values mean "not given", so
// the environment and the command line override the YAML file only for
// the settings they name.
type Options struct {
	MVIP     string `short:"m" long:"mvip" env:"SF_MVIP" description:"MVIP or FQDN of the SolidFire cluster"`
	Username string `short:"u" long:"username" env:"SF_USERNAME" description:"cluster username (prompted when empty)"`
	Password string `short:"p" long:"password" env:"SF_PASSWORD" description:"cluster password (prompted when empty)"`

	InfluxHost  string `long:"influxdb-host" env:"INFLUX_HOST" description:"InfluxDB host"`
	InfluxPort  int    `long:"influxdb-port" env:"INFLUX_PORT" description:"InfluxDB HTTPS port"`
	InfluxDB    string `long:"influxdb-name" env:"INFLUX_DB" description:"InfluxDB database, created when missing"`
	InfluxToken string `short:"t" long:"influxdb-token" env:"INFLUXDB3_AUTH_TOKEN" description:"InfluxDB 3 bearer token"`

	FrequencyHigh int  `long:"frequency-high" env:"INT_HI_FREQ" choice:"60" choice:"120" choice:"180" choice:"300" description:"high tier interval in seconds"`
	FrequencyMed  int  `long:"frequency-med" env:"INT_MED_FREQ" choice:"300" choice:"600" choice:"900" description:"medium tier interval in seconds"`
	FrequencyLow  int  `long:"frequency-low" env:"INT_LO_FREQ" choice:"1800" choice:"3600" choice:"7200" choice:"10800" description:"low tier interval in seconds"`
	Experimental  bool `long:"experimental" description:"enable the experimental tier (QoS histograms, snapshot groups)"`

	LogLevel string `long:"loglevel" choice:"DEBUG" choice:"INFO" choice:"WARNING" choice:"ERROR" choice:"CRITICAL" description:"log level"`
	LogFile  string `long:"logfile" description:"append logs to this file instead of stderr"`
	CAChain  string `short:"c" long:"ca-chain" description:"PEM bundle trusted for cluster and sink TLS"`

	ConfigFile string `long:"config" env:"SFC_CONFIG" description:"YAML configuration file"`
	Version    bool   `short:"v" long:"version" description:"print the version and exit"`
}

// abbreviations maps the two-letter forms of the classic command line to
// their long names.
var abbreviations = map[string]string{
	"ih": "influxdb-host",
	"ip": "influxdb-port",
	"id": "influxdb-name",
	"fh": "frequency-high",
	"fm": "frequency-med",
	"fl": "frequency-low",
	"ex": "experimental",
	"ll": "loglevel",
	"lf": "logfile",
}

func expandAbbreviations(args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		long, ok := abbreviations[name]
		if !ok || !strings.HasPrefix(a, "-") {
			out = append(out, a)
			continue
		}
		if hasValue {
			out = append(out, "--"+long+"="+value)
		} else {
			out = append(out, "--"+long)
		}
	}
	return out
}

// ParseArgs parses the command line; environment defaults apply to flags
// that are absent. Help output is reported with flags.ErrHelp.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{}
	p := flags.NewParser(opts, flags.Default)
	p.Name = "sfc"
	p.ShortDescription = "Collects SolidFire metrics and sends them to InfluxDB"
	if _, err := p.ParseArgs(expandAbbreviations(args)); err != nil {
		return nil, err
	}
	return opts, nil
}

// IsHelp reports whether err only means help was printed.
func IsHelp(err error) bool {
	return flags.WroteHelp(err)
}

// Apply copies the given options over c.
func (o *Options) Apply(c *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Cluster.MVIP, o.MVIP)
	set(&c.Cluster.Username, o.Username)
	set(&c.Cluster.Password, o.Password)
	set(&c.Sink.Host, o.InfluxHost)
	set(&c.Sink.Database, o.InfluxDB)
	set(&c.Sink.Token, o.InfluxToken)
	set(&c.Log.Level, o.LogLevel)
	set(&c.Log.File, o.LogFile)
	if o.CAChain != "" {
		c.Cluster.CAFile = o.CAChain
		c.Sink.CAFile = o.CAChain
	}
	if o.InfluxPort != 0 {
		c.Sink.Port = o.InfluxPort
	}
	if o.FrequencyHigh != 0 {
		c.Tiers.High = o.FrequencyHigh
	}
	if o.FrequencyMed != 0 {
		c.Tiers.Medium = o.FrequencyMed
	}
	if o.FrequencyLow != 0 {
		c.Tiers.Low = o.FrequencyLow
	}
	if o.Experimental {
		c.Tiers.Experimental = true
	}
}

// Resolve builds the effective configuration: defaults, then the YAML file
// named by the options, then environment and command line. Credentials
// may still be empty; see Prompter.
func (o *Options) Resolve() (*Config, error) {
	c := Default()
	if o.ConfigFile != "" {
		var err error
		if c, err = Load(o.ConfigFile); err != nil {
			return nil, err
		}
	}
	o.Apply(c)
	return c, nil
}
