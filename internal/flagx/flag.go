// Package flagx picks the flags one component understands out of a shared
// command line, so configuration can be loaded before the command parser
// sees the rest.
package flagx

import (
	"flag"
	"io"
	"strconv"
	"strings"
)

// Pick returns the arguments that set one of the named flags, with their
// values. Names are given without dashes and match "-name" and "--name" in
// both the "-name value" and "-name=value" forms. A separate value may be a
// negative number but not another flag. Arguments after "--" are ignored.
func Pick(args []string, names ...string) []string {
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	picked := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, ok := flagName(arg)
		if !ok {
			continue
		}
		name, _, inline := strings.Cut(name, "=")
		if _, ok := known[name]; !ok {
			continue
		}

		picked = append(picked, arg)
		if !inline && i+1 < len(args) && isValue(args[i+1]) {
			i++
			picked = append(picked, args[i])
		}
	}
	return picked
}

// flagName strips one or two leading dashes.
func flagName(arg string) (string, bool) {
	name, ok := strings.CutPrefix(arg, "-")
	if !ok {
		return "", false
	}
	name = strings.TrimPrefix(name, "-")
	return name, name != "" && !strings.HasPrefix(name, "-")
}

func isValue(s string) bool {
	if !strings.HasPrefix(s, "-") || s == "-" {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ConfigFile returns the path given by -c or -config, in any dash form. The
// last occurrence wins; an empty string means none was given.
func ConfigFile(args []string) string {
	var path string
	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "")
	fs.StringVar(&path, "c", "", "")
	_ = fs.Parse(Pick(args, "c", "config"))
	return path
}
