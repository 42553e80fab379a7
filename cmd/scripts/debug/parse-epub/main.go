package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/epub"
)

func main() {
	log := logger.New()
	ctx := log.WithContext(context.Background())

	var opts struct {
		CoverOutput string `short:"o" long:"cover-output" description:"A path to output the cover image"`
		Entries     bool   `short:"e" long:"entries" description:"List every entry of the archive"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-epub [-e] [-o cover.jpg] <path/to/file.epub>")
		os.Exit(1)
	}

	archive, err := epub.OpenFile(args[0])
	if err != nil {
		log.Err(err).Fatal("epub open error")
	}
	defer archive.Close()

	if opts.Entries {
		for _, name := range archive.Entries() {
			fmt.Println(name)
		}
	}

	packagePath, err := epub.LocatePackageDocument(archive)
	if err != nil {
		log.Err(err).Fatal("container error")
	}

	metadata, err := epub.ParsePackage(ctx, archive, packagePath)
	if err != nil {
		log.Err(err).Fatal("epub parse error")
	}

	seriesIndex := "-"
	if metadata.SeriesIndex != nil {
		seriesIndex = fmt.Sprintf("%g", *metadata.SeriesIndex)
	}
	fmt.Printf("Package: %s\nTitle: %s\nAuthor(s): %v\nLanguage: %s\nPublished: %s\nSeries: %s (%s)\nCover Path: %s\nHas Cover Data: %v\nCover Mime Type: %s\n",
		packagePath, metadata.Title, metadata.Authors, metadata.Language, metadata.PublishedDate,
		metadata.Series, seriesIndex, metadata.CoverPath, metadata.HasCover(), metadata.CoverMimeType)

	if opts.CoverOutput != "" && metadata.HasCover() {
		if err := os.WriteFile(opts.CoverOutput, metadata.CoverData, 0644); err != nil { //nolint:gosec
			log.Err(err).Fatal("file write error")
		}
	}
}
