// Command dtpack-bench drives pack/unpack/accumulate requests against the
// local in-process driver and reports a metrics snapshot. It exists so the
// transport kinds and progress engine can be exercised from the command
// line without writing a Go program first.
package main

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/dtpack/dtpack"
)

var (
	flagElements    int
	flagBlockLength int
	flagStride      int64
	flagLatency     time.Duration
	flagGPU         bool
	flagAccumulate  bool
	flagSlabSize    int
)

func main() {
	root := &cobra.Command{
		Use:   "dtpack-bench",
		Short: "Drive pack/unpack/accumulate requests and print a metrics snapshot",
		RunE:  run,
	}
	root.Flags().IntVar(&flagElements, "elements", 1<<16, "HVECTOR count (number of blocks of blocklen int32s)")
	root.Flags().IntVar(&flagBlockLength, "blocklen", 4, "HVECTOR blocklength")
	root.Flags().Int64Var(&flagStride, "stride", 32, "HVECTOR stride, in bytes")
	root.Flags().DurationVar(&flagLatency, "latency", 0, "artificial local-driver event latency")
	root.Flags().BoolVar(&flagGPU, "gpu", false, "route the pack/unpack through the local simulated GPU driver instead of H2H")
	root.Flags().BoolVar(&flagAccumulate, "accumulate", false, "unpack with an OpSum reduction instead of a plain overwrite")
	root.Flags().IntVar(&flagSlabSize, "slab-size", 1<<20, "progress engine temp-buffer slab size, in bytes")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dtpack-bench:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := dtpack.Config{SlabSize: uintptr(flagSlabSize)}
	ctx, err := dtpack.NewContext(cfg, nil)
	if err != nil {
		return err
	}
	driver := dtpack.NewLocalDriver(1, dtpack.WithLocalLatency(flagLatency))
	ctx.RegisterDriver(driver)

	i32, err := ctx.Predefined(dtpack.SeedInt32)
	if err != nil {
		return err
	}
	defer i32.Free()

	vec, err := ctx.TypeCreateHVector(flagElements, flagBlockLength, flagStride, i32)
	if err != nil {
		return err
	}
	defer vec.Free()

	count := 1
	typed := make([]byte, vec.Extent()*uintptr(count)+vec.Size())
	packed := make([]byte, vec.Size()*uintptr(count))

	typedPtr := unsafe.Pointer(&typed[0])
	packedPtr := unsafe.Pointer(&packed[0])
	if flagGPU {
		devPtr, err := driver.MallocDevice(0, uintptr(len(packed)))
		if err != nil {
			return err
		}
		defer driver.Free(devPtr, 0)
		packedPtr = devPtr
	}

	start := time.Now()
	req, n, err := ctx.Pack(typedPtr, count, vec, 0, packedPtr, uintptr(len(packed)), nil)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if req != nil {
		if err := req.Wait(); err != nil {
			return fmt.Errorf("pack wait: %w", err)
		}
	}
	packElapsed := time.Since(start)

	start = time.Now()
	var unpackReq *dtpack.Request
	if flagAccumulate {
		unpackReq, _, err = ctx.Accumulate(packedPtr, n, typedPtr, count, vec, 0, dtpack.OpSum, nil)
	} else {
		unpackReq, _, err = ctx.Unpack(packedPtr, n, typedPtr, count, vec, 0, nil)
	}
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	if unpackReq != nil {
		if err := unpackReq.Wait(); err != nil {
			return fmt.Errorf("unpack wait: %w", err)
		}
	}
	unpackElapsed := time.Since(start)

	snap := ctx.Metrics().Snapshot()
	fmt.Printf("elements=%d blocklen=%d stride=%d gpu=%v accumulate=%v\n",
		flagElements, flagBlockLength, flagStride, flagGPU, flagAccumulate)
	fmt.Printf("pack:   %v (%d bytes)\n", packElapsed, n)
	fmt.Printf("unpack: %v\n", unpackElapsed)
	fmt.Printf("metrics: pack_ops=%d unpack_ops=%d h2h_ops=%d gpu_ops=%d failed_ops=%d mean_latency=%dns uptime=%v\n",
		snap.PackOps, snap.UnpackOps, snap.H2HOps, snap.GPUOps, snap.FailedOps, snap.MeanLatencyNs, snap.Uptime)
	return nil
}
