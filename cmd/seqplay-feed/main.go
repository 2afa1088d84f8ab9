// ABOUTME: Producer CLI for seqplay hosts
// ABOUTME: Sends a directory, a tone sequence or a spool of units and prints events
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/seqplay/internal/feed"
	"github.com/harperreed/seqplay/internal/logging"
	"github.com/harperreed/seqplay/internal/version"
	"github.com/harperreed/seqplay/pkg/audio"
)

var (
	addr     = flag.String("addr", "", "Host address host:port (default: discover via mDNS)")
	dir      = flag.String("dir", "", "Directory of <id>.<ext> unit files")
	watch    = flag.Bool("watch", false, "Keep watching -dir for new units")
	tones    = flag.Int("tones", 0, "Send this many generated tones instead of files")
	codec    = flag.String("codec", audio.CodecWAV, "Tone encoding: pcm, wav or opus")
	length   = flag.Duration("length", 300*time.Millisecond, "Tone length")
	start    = flag.Int64("start", 0, "First unit id; setting it also configures the host")
	binary   = flag.Bool("binary", false, "Send binary frames instead of base64 JSON")
	window   = flag.Int("window", 1, "Shuffle arrival order within windows of this size")
	seed     = flag.Int64("seed", 0, "Shuffle seed (default: current time)")
	interval = flag.Duration("interval", 0, "Delay between units")
	release  = flag.Bool("release", false, "Release the host when done")
	progress = flag.Bool("progress", false, "Print progress events")
	name     = flag.String("name", "", "Producer name (default: hostname-feed)")
	clientID = flag.String("id", "", "Client id (default: assigned by host)")
	debug    = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger := logging.New(os.Stderr, *debug)

	if *dir == "" && *tones == 0 {
		fmt.Fprintln(os.Stderr, "need -dir or -tones")
		flag.Usage()
		os.Exit(2)
	}
	if *watch && *dir == "" {
		fmt.Fprintln(os.Stderr, "-watch needs -dir")
		os.Exit(2)
	}

	configure := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "start" {
			configure = true
		}
	})

	producer := *name
	if producer == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		producer = fmt.Sprintf("%s-feed", hostname)
	}

	var units []feed.Unit
	var err error
	if *tones > 0 {
		units, err = feed.Tones(*tones, *start, *codec, *length)
	} else {
		units, err = feed.LoadDir(*dir)
	}
	if err != nil {
		logger.Fatal("Failed to load units", "err", err)
	}
	logger.Info("Loaded units", "count", len(units), "version", version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := feed.Options{
		Addr:      *addr,
		ClientID:  *clientID,
		Name:      producer,
		Units:     units,
		Configure: configure,
		Start:     *start,
		Binary:    *binary,
		Window:    *window,
		Seed:      *seed,
		Interval:  *interval,
		Release:   *release,
		Progress:  *progress,
		Out:       os.Stdout,
		Logger:    logger,
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	if *watch {
		seen := make([]int64, len(units))
		for i, u := range units {
			seen[i] = u.ID
		}
		w, err := feed.Watch(*dir, seen, logger.WithPrefix("watch"))
		if err != nil {
			logger.Fatal("Failed to watch directory", "err", err)
		}
		defer w.Close()
		opts.Watcher = w
	}

	if err := feed.Run(ctx, opts); err != nil && err != context.Canceled {
		logger.Error("Feed failed", "err", err)
		os.Exit(1)
	}
}
