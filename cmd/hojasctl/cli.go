package main

import (
	"fmt"
	"io"
	"path/filepath"
)

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "hash-secret":
		return runHashSecret(args[2:], stdout, stderr)
	case "catalog":
		if len(args) >= 3 && args[2] == "validate" {
			return runCatalogValidate(args[3:], stdout, stderr)
		}
	case "migrate":
		return runMigrate(args[2:], stdout, stderr)
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, stderr io.Writer) {
	name := "hojasctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(stderr, "usage:\n")
	fmt.Fprintf(stderr, "  %s hash-secret [--secret <value>] [--cost <n>]   (reads stdin when --secret is omitted)\n", name)
	fmt.Fprintf(stderr, "  %s catalog validate <catalog.yaml>\n", name)
	fmt.Fprintf(stderr, "  %s migrate [--dsn <postgres dsn>]\n", name)
}
