/*
   HDFDrive - virtual IDE & SD card mass storage emulator
   Copyright (c) 2021, Alexander Vollschwitz

   This file is part of HDFDrive.

   HDFDrive is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   HDFDrive is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with HDFDrive. If not, see <http://www.gnu.org/licenses/>.
*/


package run

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//
const epilogueHeader = `
Notes:

`

/*
	The package initializer sets up logging based on logrus. The following
	environment variables can be used to configure logging:

		LOG_FORMAT		set to `json` for JSON logging
		LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
		LOG_METHODS		set to non-empty for including methods in log
		LOG_LEVEL		`panic`, `fatal`, `error`, `warn`, `info`, `debug`, `trace`
*/
func init() {

	log.SetOutput(os.Stdout)

	switch {
	case strings.ToLower(os.Getenv("LOG_FORMAT")) == "json":
		log.SetFormatter(&log.JSONFormatter{})
	case os.Getenv("LOG_FORCE_COLORS") != "":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	log.SetReportCaller(os.Getenv("LOG_METHODS") != "")

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		l, err := log.ParseLevel(level)
		if err != nil {
			log.Errorf("invalid log level '%s', using '%s'", level,
				log.GetLevel())
		} else {
			log.SetLevel(l)
		}
	}
}

// UnderTest makes Die and DieOnError panic instead of exiting.
var UnderTest bool

// DieOnError exits with the error printed, if there is one.
func DieOnError(e error) {
	if e != nil {
		Die("%v", e)
	}
}

// Die prints the message and exits.
func Die(msg string, params ...interface{}) {
	out := msg
	if len(params) > 0 {
		out = fmt.Sprintf(msg, params...)
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	fmt.Print(out)
	if UnderTest {
		panic(strings.TrimSpace(out))
	}
	os.Exit(1)
}

// GetUserConfirmation asks a yes/no question on the terminal.
func GetUserConfirmation(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var res string
	fmt.Scanln(&res)
	return strings.ToLower(strings.TrimSpace(res)) == "y"
}

/*
	Command is the base of all hdfctl actions. It wraps a Cobra command, and
	binds each action setting to a command line flag and optionally an
	environment variable, with the flag taking precedence.
*/
type Command struct {
	//
	cmd *cobra.Command
	//
	settings []*setting
	// positional arguments left after parsing flags
	Args []string
	//
	helpPrologue string
	helpEpilogue string
	helpFunc     func(*cobra.Command, []string)
}

/*
	NewCommand creates a command for an action. exec is run when Execute is
	called, after Cobra has parsed the command line.
*/
func NewCommand(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Command {

	ret := &Command{
		cmd: &cobra.Command{
			Use:   use,
			Short: short,
			Long:  long,
			RunE: func(*cobra.Command, []string) error {
				return exec()
			},
			SilenceErrors:         true,
			SilenceUsage:          true,
			DisableFlagsInUseLine: true,
		},
		helpPrologue: helpPrologue,
		helpEpilogue: helpEpilogue,
	}
	ret.helpFunc = ret.cmd.HelpFunc()
	ret.cmd.SetHelpFunc(ret.help)
	return ret
}

//
func (c *Command) help(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if c.helpPrologue != "" {
		fmt.Fprintln(out, c.helpPrologue)
	}
	c.helpFunc(cmd, args)
	if c.helpEpilogue != "" {
		fmt.Fprint(out, epilogueHeader)
		fmt.Fprintln(out, c.helpEpilogue)
	} else {
		fmt.Fprintln(out)
	}
}

// Execute parses args as the action's command line and runs the action.
func (c *Command) Execute(args []string) error {
	if args == nil {
		args = []string{}
	}
	c.cmd.SetArgs(args)
	return c.cmd.Execute()
}

/*
	AddSetting binds target to the command line flag --flag (and -short, if
	not empty), and to the environment variable env, if not empty. target
	needs to be a pointer to a string, int, uint, bool, or time.Duration. def
	is the default value, nil meaning the zero value. A required setting takes
	no default, and is missing when its value is the zero value after parsing.
*/
func (c *Command) AddSetting(target interface{}, flag, short, env string,
	def interface{}, help string, required bool) {

	if required && def != nil {
		Die("required setting '%s' does not take a default value", flag)
	}

	if env != "" {
		help = fmt.Sprintf("%s (%s)", help, env)
	}

	s := &setting{flag: flag, env: env, required: required}
	flags := c.flags()

	switch t := target.(type) {

	case *string:
		d := ""
		convertDefault(flag, def, &d)
		flags.StringVarP(t, flag, short, d, help)
		s.load = func() bool {
			*t = viper.GetString(flag)
			return *t == ""
		}

	case *int:
		d := 0
		convertDefault(flag, def, &d)
		flags.IntVarP(t, flag, short, d, help)
		s.load = func() bool {
			*t = viper.GetInt(flag)
			return *t == 0
		}

	case *uint:
		var d uint
		convertDefault(flag, def, &d)
		flags.UintVarP(t, flag, short, d, help)
		s.load = func() bool {
			*t = viper.GetUint(flag)
			return *t == 0
		}

	case *bool:
		d := false
		convertDefault(flag, def, &d)
		flags.BoolVarP(t, flag, short, d, help)
		s.load = func() bool {
			*t = viper.GetBool(flag)
			return !*t
		}

	case *time.Duration:
		var d time.Duration
		convertDefault(flag, def, &d)
		flags.DurationVarP(t, flag, short, d, help)
		s.load = func() bool {
			*t = viper.GetDuration(flag)
			return *t == 0
		}

	default:
		Die("setting '%s' has unsupported type %T", flag, target)
	}

	viper.BindPFlag(flag, flags.Lookup(flag))
	if env != "" {
		viper.BindEnv(flag, env)
	}

	log.WithFields(log.Fields{"flag": flag, "env": env}).Trace("setting added")
	c.settings = append(c.settings, s)
}

// convertDefault stores def in d, converting numeric defaults as needed.
func convertDefault(flag string, def, d interface{}) {
	if def == nil {
		return
	}
	dst := reflect.ValueOf(d).Elem()
	src := reflect.ValueOf(def)
	if !src.Type().ConvertibleTo(dst.Type()) ||
		(src.Kind() == reflect.String) != (dst.Kind() == reflect.String) {
		Die("default value for setting '%s' has incorrect type %T", flag, def)
	}
	dst.Set(src.Convert(dst.Type()))
}

/*
	ParseSettings stores the value of each setting in its target, taken from
	the flag if given, or else the environment variable, or else the default.
	It needs to be called at the start of the exec function.
*/
func (c *Command) ParseSettings() {
	DieOnError(c.loadSettings())
}

//
func (c *Command) loadSettings() error {
	for _, s := range c.settings {
		if err := s.apply(); err != nil {
			return err
		}
	}
	c.Args = c.flags().Args()
	return nil
}

//
func (c *Command) flags() *pflag.FlagSet {
	return c.cmd.Flags()
}

//
type setting struct {
	flag     string
	env      string
	required bool
	load     func() (zero bool)
}

/*
	apply updates the setting's target from Viper. pflag has already set the
	target from the command line or default, but values that only come from
	the environment need to be fetched via Viper.
*/
func (s *setting) apply() error {

	zero := s.load()

	if s.required && zero {
		msg := fmt.Sprintf(
			"you need to specify the --%s command line flag", s.flag)
		if s.env != "" {
			msg = fmt.Sprintf("%s or the %s environment variable", msg, s.env)
		}
		return fmt.Errorf("%s", msg)
	}

	log.WithFields(log.Fields{
		"flag":   s.flag,
		"is-set": viper.IsSet(s.flag),
	}).Trace("setting loaded")

	return nil
}
