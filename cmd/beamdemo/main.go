// Command beamdemo wires one sender goroutine and one receiver goroutine
// over a single Beam, standing in for the connection-handler/worker-thread
// pairing of an HTTP/2 server: the connection handler (here, the
// sender goroutine) hands a request body to a worker goroutine without
// copying its payload.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aistore/beam2/arena"
	"github.com/aistore/beam2/beam"
	"github.com/aistore/beam2/bucket"
	"github.com/aistore/beam2/internal/nlog"
)

func main() {
	var (
		chunks  = flag.Int("chunks", 20, "number of heap chunks to send")
		maxBuf  = flag.Int64("max-buf", 4096, "beam buffer size in bytes, 0 = unbounded")
		timeout = flag.Duration("timeout", 5*time.Second, "blocking-wait timeout")
	)
	flag.Parse()

	if err := run(*chunks, *maxBuf, *timeout); err != nil {
		nlog.Errorln(err)
		os.Exit(1)
	}
}

func run(chunks int, maxBuf int64, timeout time.Duration) error {
	root := arena.New("beamdemo-conn", nil)
	defer root.Destroy()

	b, err := beam.New(root, "req-body", beam.Options{MaxBufSize: maxBuf, Timeout: timeout})
	if err != nil {
		return fmt.Errorf("beamdemo: create beam: %w", err)
	}

	b.OnSendBlock(func(_ any, bm *beam.Beam) {
		nlog.Infof("beamdemo: %s send blocked, buffered=%d", bm.Name(), bm.GetBuffered())
	}, nil)

	g := new(errgroup.Group)

	g.Go(func() error {
		return sender(b, chunks)
	})
	g.Go(func() error {
		return receiver(b)
	})

	return g.Wait()
}

func sender(b *beam.Beam, chunks int) error {
	var total int64
	for i := 0; i < chunks; i++ {
		size := 128 + rand.Intn(512)
		data := make([]byte, size)
		sent, err := b.Send([]bucket.Bucket{bucket.NewHeap(data)}, beam.Block)
		if err != nil {
			return fmt.Errorf("beamdemo: send chunk %d: %w", i, err)
		}
		total += sent
	}
	if _, err := b.Send([]bucket.Bucket{bucket.NewEOS()}, beam.Block); err != nil {
		return fmt.Errorf("beamdemo: send EOS: %w", err)
	}
	if err := b.Close(beam.SideSender); err != nil {
		return fmt.Errorf("beamdemo: close: %w", err)
	}
	nlog.Infof("beamdemo: sender done, %d bytes across %d chunks", total, chunks)
	return nil
}

func receiver(b *beam.Beam) error {
	var total int64
	for {
		g := beam.NewBrigade()
		_, err := b.Receive(g, beam.Block, -1)
		for _, bk := range g.Buckets() {
			if bk.IsMetadata() {
				continue
			}
			total += bk.Length()
		}
		g.Destroy()
		if err != nil {
			if err == beam.ErrAborted {
				return err
			}
			nlog.Infof("beamdemo: receiver done, %d bytes", total)
			return nil
		}
	}
}
