package main

import (
	"strings"

	"github.com/spf13/pflag"

	"nopg/internal/cliargs"
)

// splitPIDs removes the daemon pid words that precede the command word.
// Values of known flags are skipped so "--timeout 50 search" is not read as
// pid 50.
func splitPIDs(flags *pflag.FlagSet, argv []string) ([]int, []string) {
	var positions []int
	for i := 0; i < len(argv); i++ {
		word := argv[i]
		if word == "--" {
			break
		}
		if strings.HasPrefix(word, "-") && word != "-" {
			if flagTakesValue(flags, word) {
				i++
			}
			continue
		}
		positions = append(positions, i)
	}

	words := make([]string, len(positions))
	for i, pos := range positions {
		words[i] = argv[pos]
	}
	pids, _ := cliargs.SplitPositional(words)
	if len(pids) == 0 {
		return nil, argv
	}

	drop := make(map[int]struct{}, len(pids))
	for _, pos := range positions[:len(pids)] {
		drop[pos] = struct{}{}
	}
	rest := make([]string, 0, len(argv)-len(drop))
	for i, word := range argv {
		if _, ok := drop[i]; !ok {
			rest = append(rest, word)
		}
	}
	return pids, rest
}

func flagTakesValue(flags *pflag.FlagSet, word string) bool {
	if flags == nil || strings.Contains(word, "=") {
		return false
	}
	var flag *pflag.Flag
	if name, ok := strings.CutPrefix(word, "--"); ok {
		flag = flags.Lookup(name)
	} else {
		short := word[1:]
		if len(short) != 1 {
			return false
		}
		flag = flags.ShorthandLookup(short)
	}
	return flag != nil && flag.NoOptDefVal == ""
}
