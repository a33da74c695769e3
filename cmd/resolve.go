package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"linkchain/internal/config"
	"linkchain/internal/history"
	"linkchain/internal/media"
	"linkchain/internal/resolve"
	"linkchain/internal/subtitle"
	"linkchain/internal/ui"
)

var errNoLinks = errors.New("no stream links found")

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolve a watch page into stream links",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRun,
}

type resolveOutput struct {
	Page      string             `json:"page"`
	Links     []media.StreamLink `json:"links"`
	Subtitles []media.Subtitle   `json:"subtitles,omitempty"`
}

func resolveRun(cmd *cobra.Command, args []string) error {
	page, err := media.NewWatchPage(args[0],
		media.WithEpisode(flagSeason, flagEpisode),
		media.WithContentID(flagContentID),
		media.WithReferer(flagReferer),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var rec resolve.Recorder
	if cfg.History {
		if store, err := openHistory(); err != nil {
			logger.WithError(err).Warn("history disabled")
		} else {
			defer store.Close()
			rec = store
		}
	}

	p, fetcher, err := newPipeline(cfg, logger, rec)
	if err != nil {
		return err
	}

	out := resolveOutput{Page: page.URL}
	switch {
	case flagJSON:
		p.Resolve(ctx, page,
			func(l media.StreamLink) { out.Links = append(out.Links, l) },
			func(s media.Subtitle) { out.Subtitles = append(out.Subtitles, s) },
		)
	case !flagPlain && term.IsTerminal(int(os.Stdout.Fd())):
		model, err := ui.Run(ctx, page.URL, func(ctx context.Context) iter.Seq[media.Event] {
			return p.Events(ctx, page)
		}, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		out.Links, out.Subtitles = model.Links(), model.Subtitles()
	default:
		w := cmd.OutOrStdout()
		p.Resolve(ctx, page,
			func(l media.StreamLink) {
				out.Links = append(out.Links, l)
				printLink(w, l)
			},
			func(s media.Subtitle) {
				out.Subtitles = append(out.Subtitles, s)
				if !flagNoSubs && len(subtitle.Filter([]media.Subtitle{s}, flagLanguage)) > 0 {
					fmt.Fprintf(w, "subtitle\t%s\t%s\n", s.Language, s.URL)
				}
			},
		)
	}

	media.SortLinks(out.Links)
	if flagNoSubs {
		out.Subtitles = nil
	} else {
		out.Subtitles = subtitle.Filter(out.Subtitles, flagLanguage)
	}

	if flagSubsDir != "" && len(out.Subtitles) > 0 {
		if best, ok := subtitle.BestMatch(out.Subtitles, cfg.SubsLanguage); ok {
			path, err := subtitle.Save(ctx, fetcher, best, page.URL, flagSubsDir)
			if err != nil {
				logger.WithError(err).Warn("saving subtitle")
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "subtitle saved to", path)
			}
		}
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if len(out.Links) == 0 {
		return errNoLinks
	}
	return nil
}

func printLink(w io.Writer, l media.StreamLink) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Quality, l.Kind, l.Source, l.URL)
}

func openHistory() (*history.Store, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}
