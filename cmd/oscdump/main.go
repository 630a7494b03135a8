// oscdump listens for pose bundles on a UDP port and prints them, one line
// per bundle. It is the receiving end used to check a posestream run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/oscwire"
)

// maxDatagram is the largest UDP payload
const maxDatagram = 65535

type options struct {
	listen string
	watch  string
	count  int
	all    bool
}

func main() {
	var opts options
	var logLevel string

	flagSet := pflag.NewFlagSet("oscdump", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.listen, "listen", "l", "127.0.0.1:12345", "UDP address to listen on")
	flagSet.StringVarP(&opts.watch, "watch", "w", "", "print only this keypoint's coordinates")
	flagSet.IntVarP(&opts.count, "count", "n", 0, "exit after this many bundles (0 = run until interrupted)")
	flagSet.BoolVarP(&opts.all, "all", "a", false, "print every message of each bundle")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, silent)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oscdump: %v\n", err)
		os.Exit(2)
	}
	logger.Init(level, os.Stderr, false)

	conn, err := net.ListenPacket("udp", opts.listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oscdump: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("Dump", "Listening on udp://%s", conn.LocalAddr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := dump(ctx, conn, opts, os.Stdout)
	logger.Info("Dump", "%d bundles received", n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oscdump: %v\n", err)
		os.Exit(1)
	}
}

// dump prints bundles read from conn until ctx ends or opts.count bundles
// have arrived. Undecodable datagrams are logged and skipped.
func dump(ctx context.Context, conn net.PacketConn, opts options, out io.Writer) (int, error) {
	log := logger.For("Dump")
	watch := ""
	if opts.watch != "" {
		watch = oscwire.Address(opts.watch)
	}

	stopOnCancel := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stopOnCancel()

	buf := make([]byte, maxDatagram)
	received := 0
	for opts.count <= 0 || received < opts.count {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, err
		}

		bundle, err := oscwire.DecodeBundle(buf[:n])
		if err != nil {
			log.Warn("Datagram from %s skipped: %v", from, err)
			continue
		}
		received++

		var line strings.Builder
		fmt.Fprintf(&line, "%s %d msgs %d bytes", bundle.Timetag.Time().UTC().Format("15:04:05.000000"), len(bundle.Messages), n)
		for _, msg := range bundle.Messages {
			if !opts.all && msg.Address != watch {
				continue
			}
			c, err := oscwire.Coords(msg)
			if err != nil {
				log.Warn("%v", err)
				continue
			}
			fmt.Fprintf(&line, " %s=(%.4f, %.4f, %.4f)", strings.TrimPrefix(msg.Address, oscwire.AddressPrefix), c[0], c[1], c[2])
		}
		fmt.Fprintln(out, line.String())
	}
	return received, nil
}
