// Command import_books adds every "isbn,title,author" line of a listing file
// to the configured book catalog.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"library-catalog/config"
	"library-catalog/library"
	"library-catalog/logging"
)

type result struct {
	imported int
	failed   int
}

func main() {
	cfgFile := flag.String("config", "", "YAML config file")
	books := flag.String("books", "", "book catalog file (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: import_books [flags] LISTING\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *books != "" {
		cfg.BooksFile = *books
	}
	logger, err := logging.New(cfg.LogLevel, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	catalog := library.NewCatalog(cfg.BooksFile, logger)
	if err := catalog.Load(); err != nil {
		// Importing into an empty catalog would overwrite the unreadable file.
		fmt.Fprintf(os.Stderr, "Error reading catalog: %v\n", err)
		os.Exit(1)
	}

	listing, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening listing: %v\n", err)
		os.Exit(1)
	}
	defer listing.Close()

	fmt.Printf("Importing books from %s into %s...\n", flag.Arg(0), cfg.BooksFile)
	res, err := importListing(catalog, listing, os.Stdout, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading listing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", res.imported)
	fmt.Printf("Errors: %d\n", res.failed)

	if res.imported > 0 {
		fmt.Println("\nCatalog now holds:")
		fmt.Printf("%-15s %-50s %-30s\n", "ISBN", "Title", "Author")
		fmt.Println(strings.Repeat("-", 97))
		for _, b := range catalog.ListSortedByTitle() {
			fmt.Printf("%-15s %-50s %-30s\n", b.ISBN, truncateString(b.Title, 50), truncateString(b.Author, 30))
		}
	}
	if res.failed > 0 {
		os.Exit(1)
	}
}

// importListing adds one book per non-blank line of r, reporting each
// outcome to w. Only a read error on r stops the import.
func importListing(catalog *library.Catalog, r io.Reader, w io.Writer, logger *zap.Logger) (result, error) {
	var res result
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			fmt.Fprintf(w, "Line %d: ERROR - expected isbn,title,author\n", lineNo)
			res.failed++
			continue
		}
		isbn, title, author := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])

		fmt.Fprintf(w, "Importing: %s by %s... ", title, author)
		if err := catalog.Add(isbn, title, author); err != nil {
			fmt.Fprintf(w, "ERROR - %v\n", err)
			logger.Debug("import failed", zap.Int("line", lineNo), zap.Error(err))
			res.failed++
			continue
		}
		fmt.Fprintf(w, "SUCCESS (ISBN: %s)\n", isbn)
		res.imported++
	}
	return res, sc.Err()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
