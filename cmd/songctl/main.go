package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"songshare/internal/client"
)

const barTemplate = `{{ string . "prefix" }} {{ bar . }} {{ percent . }} | {{ speed . "%s/s" }} | ETA {{ rtime . "%s" }}`

var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
	colorLabel   = color.New(color.Bold)
)

var (
	apiURL      string
	timeout     time.Duration
	description string
	outputPath  string
	listLimit   int
)

var rootCmd = &cobra.Command{
	Use:   "songctl",
	Short: "Upload, share and download songs on a songshare server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		color.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file] [title] [artist]",
	Short: "Upload an audio file and print its share token.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, title, artist := args[0], args[1], args[2]

		var bar *pb.ProgressBar
		if isTTY() {
			bar = pb.New64(0)
			bar.SetTemplateString(barTemplate)
			bar.Set("prefix", fmt.Sprintf("Uploading %-30s", truncate(filepath.Base(path), 30)))
			bar.Set(pb.Bytes, true)
			bar.Start()
		}

		created, err := newClient().Upload(cmd.Context(), client.UploadRequest{
			Path:        path,
			Title:       title,
			Artist:      artist,
			Description: description,
			Progress: func(sent, total int64) {
				if bar != nil {
					bar.SetTotal(total)
					bar.SetCurrent(sent)
				}
			},
		})
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return err
		}

		colorSuccess.Printf("✅ Uploaded %q by %s\n", created.Get("title").String(), created.Get("artist").String())
		printField("token", created.Get("token").String())
		printField("share", created.Get("share_url").String())
		printField("download", created.Get("download_url").String())
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [token]",
	Short: "Show a song's metadata (counts as a view).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		song, err := newClient().Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSong(song)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [token]",
	Short: "Download a song (counts as a download).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dl, err := newClient().Download(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer dl.Body.Close()

		path := outputPath
		if path == "" {
			path = dl.FileName
		}
		if path == "" {
			path = args[0]
		}
		return save(path, dl)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent songs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		songs, err := newClient().List(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if songs.Get("#").Int() == 0 {
			colorWarning.Println("No songs yet.")
			return nil
		}
		songs.ForEach(func(_, s gjson.Result) bool {
			fmt.Printf("%s  %-30s %-20s %8s  %s\n",
				colorInfo.Sprint(s.Get("token").String()),
				truncate(s.Get("title").String(), 30),
				truncate(s.Get("artist").String(), 20),
				humanize.IBytes(s.Get("size").Uint()),
				humanize.Time(s.Get("created_at").Time()))
			return true
		})
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals and the most downloaded songs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		printField("songs", humanize.Comma(stats.Get("total_songs").Int()))
		printField("views", humanize.Comma(stats.Get("total_views").Int()))
		printField("downloads", humanize.Comma(stats.Get("total_downloads").Int()))

		colorLabel.Println("\nMost downloaded")
		stats.Get("top_songs").ForEach(func(i, s gjson.Result) bool {
			fmt.Printf("%2d. %-30s %-20s %s\n",
				i.Int()+1,
				truncate(s.Get("title").String(), 30),
				truncate(s.Get("artist").String(), 20),
				colorInfo.Sprint(humanize.Comma(s.Get("download_count").Int())))
			return true
		})
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("SONGSHARE_API", "http://localhost:8080"), "songshare server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (0 keeps the client default)")
	uploadCmd.Flags().StringVarP(&description, "description", "d", "", "song description")
	downloadCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (defaults to the original file name)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "number of songs to list")

	rootCmd.AddCommand(uploadCmd, infoCmd, downloadCmd, listCmd, statsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(apiURL, timeout)
}

func save(path string, dl *client.Download) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	var dst io.Writer = out
	var bar *pb.ProgressBar
	if isTTY() {
		bar = pb.New64(dl.Size)
		bar.SetTemplateString(barTemplate)
		bar.Set("prefix", fmt.Sprintf("Downloading %-30s", truncate(filepath.Base(path), 30)))
		bar.Set(pb.Bytes, true)
		bar.Start()
		dst = bar.NewProxyWriter(out)
	}

	n, err := io.Copy(dst, dl.Body)
	if bar != nil {
		bar.Finish()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && dl.Size >= 0 && n != dl.Size {
		err = fmt.Errorf("incomplete download: expected %d bytes, got %d bytes", dl.Size, n)
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	colorSuccess.Printf("✅ Saved %s (%s)\n", path, humanize.IBytes(uint64(n)))
	return nil
}

func printSong(s gjson.Result) {
	printField("token", s.Get("token").String())
	printField("title", s.Get("title").String())
	printField("artist", s.Get("artist").String())
	if d := s.Get("description").String(); d != "" {
		printField("description", d)
	}
	printField("type", s.Get("content_type").String())
	printField("size", humanize.IBytes(s.Get("size").Uint()))
	printField("views", humanize.Comma(s.Get("view_count").Int()))
	printField("downloads", humanize.Comma(s.Get("download_count").Int()))
	printField("uploaded", humanize.Time(s.Get("created_at").Time()))
	printField("share", s.Get("share_url").String())
}

func printField(label, value string) {
	fmt.Printf("%s %s\n", colorLabel.Sprintf("%-12s", label+":"), value)
}

func printError(err error) {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		colorError.Printf("❌ %v\n", err)
		return
	}
	colorError.Printf("❌ %s\n", apiErr.Detail)
	names := make([]string, 0, len(apiErr.Fields))
	for name := range apiErr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		colorWarning.Printf("   %s %s\n", name, apiErr.Fields[name])
	}
}

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
