package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/segmentio/encoding/json"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/shelvr/shelvr/pkg/library"
	"github.com/shelvr/shelvr/pkg/preferences"
	"github.com/shelvr/shelvr/pkg/reader"
	"github.com/urfave/cli/v2"
)

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "import EPUB files into the library",
	ArgsUsage: "<file.epub>...",
	Action: withApp(func(c *cli.Context, a *app) error {
		if c.NArg() == 0 {
			return errors.New("at least one file is required")
		}

		failed := 0
		for _, path := range c.Args().Slice() {
			info, err := os.Stat(path)
			file := library.PickedFile{Path: path}
			if err == nil {
				file.Size = info.Size()
			}

			result, err := a.library.Import(c.Context, file)
			if err != nil {
				failed++
				var e *errcodes.Error
				if errors.As(err, &e) {
					logger.FromContext(c.Context).Warn("import failed", logger.Data{"path": path, "detail": e.LogDetail()})
				}
				fmt.Fprintf(os.Stderr, "%s: %s\n", path, err.Error())
				continue
			}

			fmt.Printf("Imported %q as %s\n", result.Book.Title, result.Book.ID)
			for _, w := range result.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}

		if failed > 0 {
			return errors.Errorf("%d of %d imports failed", failed, c.NArg())
		}
		return nil
	}),
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list the library, most recently updated first",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source", Usage: "only books from this source (local or komga)"},
		&cli.StringFlag{Name: "komga-server", Usage: "only books from this Komga server"},
		&cli.StringFlag{Name: "sort", Value: string(library.SortRecent), Usage: "recent, title or author"},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		order, ok := library.ParseSortOrder(c.String("sort"))
		if !ok {
			return errors.Errorf("unknown sort order %q", c.String("sort"))
		}
		opts := library.LoadOptions{}
		if source := c.String("source"); source != "" {
			opts.Source = &source
		}
		if server := c.String("komga-server"); server != "" {
			opts.KomgaServerID = &server
		}
		if err := a.library.Load(c.Context, opts); err != nil {
			return err
		}

		return printBooks(c, a.library.State().Sorted("", order))
	}),
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "find books by title or author",
	ArgsUsage: "<query>",
	Action: withApp(func(c *cli.Context, a *app) error {
		if err := a.library.Load(c.Context, library.LoadOptions{}); err != nil {
			return err
		}
		return printBooks(c, a.library.Search(strings.Join(c.Args().Slice(), " ")))
	}),
}

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "show one book with its reading progress",
	ArgsUsage: "<book-id>",
	Action: withApp(func(c *cli.Context, a *app) error {
		id := c.Args().First()
		book, err := a.books.RetrieveBook(c.Context, books.RetrieveBookOptions{ID: &id})
		if err != nil {
			return err
		}
		progress, err := a.books.RetrieveReadingProgress(c.Context, id)
		if err != nil {
			return err
		}

		if c.Bool("json") {
			return printJSON(library.BookWithProgress{Book: book, Progress: progress})
		}

		fmt.Printf("ID:          %s\n", book.ID)
		fmt.Printf("Title:       %s\n", book.Title)
		fmt.Printf("Authors:     %s\n", book.AuthorLine())
		if book.Series != nil {
			index := ""
			if book.SeriesIndex != nil {
				index = fmt.Sprintf(" #%g", *book.SeriesIndex)
			}
			fmt.Printf("Series:      %s%s\n", *book.Series, index)
		}
		fmt.Printf("Source:      %s\n", book.SourceName)
		fmt.Printf("File:        %s\n", book.FilePath)
		if book.CoverPath != nil {
			fmt.Printf("Cover:       %s\n", *book.CoverPath)
		}
		if progress != nil {
			fmt.Printf("Progress:    %s", percent(progress.Percentage))
			if progress.ChapterTitle != nil {
				fmt.Printf(" (%s)", *progress.ChapterTitle)
			}
			fmt.Println()
		}
		if book.Description != nil {
			fmt.Printf("\n%s\n", *book.Description)
		}
		return nil
	}),
}

var editCommand = &cli.Command{
	Name:      "edit",
	Usage:     "change a book's metadata",
	ArgsUsage: "<book-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "title"},
		&cli.StringSliceFlag{Name: "author", Usage: "repeat for several authors; pass \"\" to clear"},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "language"},
		&cli.StringFlag{Name: "series"},
		&cli.Float64Flag{Name: "series-index"},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		id := c.Args().First()
		book, err := a.books.RetrieveBook(c.Context, books.RetrieveBookOptions{ID: &id})
		if err != nil {
			return err
		}

		var columns []string
		if c.IsSet("title") {
			book.Title = strings.TrimSpace(c.String("title"))
			columns = append(columns, "title")
		}
		if c.IsSet("author") {
			book.Authors = nil
			for _, name := range c.StringSlice("author") {
				if name = strings.TrimSpace(name); name != "" {
					book.Authors = append(book.Authors, name)
				}
			}
			columns = append(columns, "authors")
		}
		if c.IsSet("description") {
			book.Description = nonEmpty(c.String("description"))
			columns = append(columns, "description")
		}
		if c.IsSet("language") {
			book.Language = nonEmpty(c.String("language"))
			columns = append(columns, "language")
		}
		if c.IsSet("series") {
			book.Series = nonEmpty(c.String("series"))
			columns = append(columns, "series")
		}
		if c.IsSet("series-index") {
			index := c.Float64("series-index")
			book.SeriesIndex = &index
			columns = append(columns, "series_index")
		}
		if len(columns) == 0 {
			return errors.New("nothing to change")
		}

		if err := a.library.Update(c.Context, book, columns...); err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", book.ID, strings.Join(columns, ", "))
		return nil
	}),
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "remove a book from the library",
	ArgsUsage: "<book-id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "delete-file", Usage: "also delete the stored EPUB and cover"},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		id := c.Args().First()
		if err := a.library.Remove(c.Context, id, c.Bool("delete-file")); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", id)
		return nil
	}),
}

var progressCommand = &cli.Command{
	Name:      "progress",
	Usage:     "set the reading position of a book",
	ArgsUsage: "<book-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "cfi", Required: true},
		&cli.Float64Flag{Name: "percentage", Required: true},
		&cli.StringFlag{Name: "chapter"},
		&cli.StringFlag{Name: "chapter-title"},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		progress := &books.ReadingProgress{
			BookID:       c.Args().First(),
			CFI:          nonEmpty(c.String("cfi")),
			Percentage:   c.Float64("percentage"),
			Chapter:      nonEmpty(c.String("chapter")),
			ChapterTitle: nonEmpty(c.String("chapter-title")),
		}
		if err := a.books.UpsertReadingProgress(c.Context, progress); err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", percent(progress.Percentage))
		return nil
	}),
}

// readCommand bridges a rendering engine over stdin. Each line is a location
// event, "<cfi>\t<percentage or ->\t<chapter title>"; a line starting with
// "locations " carries the pagination table as a JSON array.
var readCommand = &cli.Command{
	Name:      "read",
	Usage:     "track reading position events for a book from stdin",
	ArgsUsage: "<book-id>",
	Action: withApp(func(c *cli.Context, a *app) error {
		log := logger.FromContext(c.Context)

		if err := a.library.Load(c.Context, library.LoadOptions{}); err != nil {
			return err
		}
		session, err := a.reader.Open(c.Context, c.Args().First(), reader.OpenOptions{
			OnSaved: a.library.SetProgress,
		})
		if err != nil {
			return err
		}
		defer session.Close()

		fmt.Printf("Reading %q", session.Book.Title)
		if session.InitialLocation != "" {
			fmt.Printf(" from %s (%s)", session.InitialLocation, percent(session.Position().Percentage))
		}
		fmt.Println()
		if session.InitialLocations != nil {
			fmt.Printf("Using %d cached locations\n", len(session.InitialLocations))
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		graceful := signals.Setup()
		for {
			select {
			case <-graceful:
				log.Info("interrupted; closing book")
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if rest, found := strings.CutPrefix(line, "locations "); found {
					var locs []string
					if err := json.Unmarshal([]byte(rest), &locs); err != nil {
						log.Warn("invalid locations line", logger.Data{"error": err.Error()})
						continue
					}
					session.LocationsReady(c.Context, locs)
					continue
				}
				ev, err := parseEvent(line)
				if err != nil {
					log.Warn("invalid location event", logger.Data{"line": line, "error": err.Error()})
					continue
				}
				session.OnLocationEvent(ev)
				pos := session.Position()
				fmt.Printf("%s  %s\n", percent(pos.Percentage), pos.ChapterTitle)
			}
		}
	}),
}

var prefsCommand = &cli.Command{
	Name:  "prefs",
	Usage: "show or change reading preferences",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "theme", Usage: "light, dark or sepia"},
		&cli.IntFlag{Name: "font-size", Usage: "12 to 32"},
		&cli.StringFlag{Name: "font-family", Usage: "system, original, georgia, palatino, bookerly or openDyslexic"},
		&cli.Float64Flag{Name: "line-spacing", Usage: "1.0 to 2.5"},
		&cli.BoolFlag{Name: "reopen-last-book"},
	},
	Action: withApp(func(c *cli.Context, a *app) error {
		prefs, err := a.prefs.Update(c.Context, func(p *preferences.Preferences) {
			if c.IsSet("theme") {
				p.Theme = preferences.Theme(c.String("theme"))
			}
			if c.IsSet("font-size") {
				p.FontSize = c.Int("font-size")
			}
			if c.IsSet("font-family") {
				p.FontFamily = preferences.FontFamily(c.String("font-family"))
			}
			if c.IsSet("line-spacing") {
				p.LineSpacing = c.Float64("line-spacing")
			}
			if c.IsSet("reopen-last-book") {
				p.ReopenLastBookOnLaunch = c.Bool("reopen-last-book")
			}
		})
		if err != nil {
			return err
		}
		return printJSON(prefs)
	}),
}

func printBooks(c *cli.Context, list []library.BookWithProgress) error {
	if c.Bool("json") {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No books.")
		return nil
	}
	for _, b := range list {
		progress := "-"
		if b.Progress != nil {
			progress = percent(b.Progress.Percentage)
		}
		fmt.Printf("%s  %5s  %s", b.ID, progress, b.Title)
		if len(b.Authors) > 0 {
			fmt.Printf(" by %s", b.AuthorLine())
		}
		fmt.Println()
	}
	return nil
}

// parseEvent parses "<cfi>\t<percentage or ->\t<chapter title>". Percentage
// and title may be omitted.
func parseEvent(line string) (reader.LocationEvent, error) {
	fields := strings.SplitN(line, "\t", 3)
	ev := reader.LocationEvent{CFI: strings.TrimSpace(fields[0])}
	if ev.CFI == "" {
		return ev, errors.New("missing cfi")
	}
	if len(fields) > 1 {
		if raw := strings.TrimSpace(fields[1]); raw != "" && raw != "-" {
			pct, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return ev, errors.Wrap(err, "invalid percentage")
			}
			ev.Percentage = &pct
		}
	}
	if len(fields) > 2 {
		ev.ChapterTitle = strings.TrimSpace(fields[2])
	}
	return ev, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
