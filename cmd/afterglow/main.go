// Copyright (C) 2026 Moritz Fichtner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/ops/develop"
	"github.com/mfichtner/afterglow/internal/rest"
	"github.com/mfichtner/afterglow/internal/synth"
)

const version = "0.1.2"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out      = flag.String("out", "", "output file pattern with %d for the frame id; default out_%04d.png (develop) or synth_%04d.exr (synth)")
var logFile  = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output pattern with .log")
var jsonDump = flag.Bool("json", false, "print operator pipeline as JSON and exit")
var threads  = flag.Int("threads", 0, "number of threads for parallel stages, 0=physical CPU cores")

var width  = flag.Int("width",  0, "output image width, 0=render resolution")
var height = flag.Int("height", 0, "output image height, 0=render resolution")

var denoise    = flag.Bool("denoise", true, "median denoising guided by the geometry buffer")
var gain       = flag.Float64("gain", 1.0, "auto exposure base gain")
var adaptation = flag.Float64("adaptation", 1.0, "eye adaptation rate in 1/s, higher adapts faster")
var bloom      = flag.Float64("bloom", 0.05, "bloom composite strength, 0=off")
var flare      = flag.Float64("flare", 1.0, "lens flare strength, 0=off")
var flareElems = flag.Int("flareElements", 7, "number of lens flare ghost elements")
var flareSeed  = flag.Int("flareSeed", 0, "seed for the procedural flare element parameters")
var whitePoint = flag.Float64("whitePoint", 11.2, "filmic tone mapping white point")
var gamma      = flag.Float64("gamma", 2.2, "display gamma for encoding the tone mapped output")
var sharpen    = flag.Float64("sharpen", 1.0, "contrast-adaptive sharpening strength in [0,1], 0=off")

var frames   = flag.Int("frames", 8, "number of frames to synthesize")
var synWidth = flag.Int("synthWidth", 1280, "render width of synthesized frames")
var synHeight= flag.Int("synthHeight", 720, "render height of synthesized frames")
var seed     = flag.Int("seed", 0, "seed for synthesized shot noise")
var noise    = flag.Float64("noise", 0.15, "shot noise amplitude of synthesized frames")

var addr   = flag.String("addr", ":8080", "address and port to serve on")
var chroot = flag.String("chroot", "", "serve mode: change filesystem root to `dir` (requires root)")
var setuid = flag.Int("setuid", -1, "serve mode: change user id after chroot, -1=don't")

func main() {
	logWriter:=io.Writer(os.Stdout)
	debug.SetGCPercent(10)
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(logWriter, `Afterglow Copyright (c) 2026 Moritz Fichtner
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (develop|synth|serve|legal|version|help) (frame0.exr ... frameN.exr)

Commands:
  develop Develop rendered HDR frames into display-ready images
  synth   Synthesize procedural HDR test frames with sidecar metadata
  serve   Offer the development pipeline as a web service
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

    args:=flag.Args()
    if len(args)<1 {
    	flag.Usage()
    	return
    }

	// set output defaults per command
    switch args[0] {
    case "develop":
		if *out=="" { *out="out_%04d.png" }
    case "synth":
		if *out=="" { *out="synth_%04d.exr" }
    }

	// Initialize logging to file in addition to stdout, if selected
	if *logFile=="%auto" {
		if *out!="" {
			*logFile=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
			*logFile=strings.ReplaceAll(*logFile, "%04d", "")
		} else {
			*logFile=""
		}
	}
	if *logFile!="" {
		f, err:=os.Create(*logFile)
		if err!=nil {
			fmt.Fprintf(logWriter, "Unable to open logfile '%s': %s\n", *logFile, err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		logWriter=io.MultiWriter(os.Stdout, f)
	}

	fmt.Fprintf(logWriter, "Afterglow v%s on %s, %d physical cores, %d logical cores, %d MiB RAM\n",
	            version, cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs)

	// Enable CPU profiling if flagged
    if *cpuprofile != "" {
        f, err := os.Create(*cpuprofile)
        if err != nil {
			fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
			os.Exit(-1)
        }
        defer f.Close()
        if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
			os.Exit(-1)
        }
        defer pprof.StopCPUProfile()
    }

	c:=ops.NewContext(logWriter)
	if *threads>0 {
		c.MaxThreads=*threads
	} else if cpuid.CPU.PhysicalCores>0 {
		c.MaxThreads=cpuid.CPU.PhysicalCores
	}

	var err error
    switch args[0] {
    case "develop":
    	err=cmdDevelop(args[1:], c)

    case "synth":
    	err=cmdSynth(c)

    case "serve":
    	rest.MakeSandbox(*chroot, *setuid)
    	err=rest.Serve(*addr)

    case "legal":
    	fmt.Fprint(logWriter, legal)

    case "version":
    	fmt.Fprintf(logWriter, "Version %s\n", version)

    case "help", "?":
    	flag.Usage()

    default:
    	fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
    	flag.Usage()
    	return
    }

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
    if *memprofile != "" {
        f, err := os.Create(*memprofile)
        if err != nil {
			fmt.Fprintf(logWriter, "Could not create memory profile: %s\n", err.Error())
			os.Exit(-1)
        }
        defer f.Close()
        runtime.GC() // get up-to-date statistics
        if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
			fmt.Fprintf(logWriter, "Could not write allocation profile: %s\n", err.Error())
			os.Exit(-1)
        }
    }

    if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Builds the development pipeline from the command line flags.
func makePipeline() *develop.OpDevelop {
	dev:=develop.NewOpDevelop(*width, *height, *out)
	dev.Denoise.Active            = *denoise
	dev.AutoExposure.Gain           = float32(*gain)
	dev.AutoExposure.AdaptationRate = float32(*adaptation)
	dev.Bloom.Strength            = float32(*bloom)
	dev.Bloom.Active              = *bloom>0
	dev.LensFlare.Strength        = float32(*flare)
	dev.LensFlare.Active          = *flare>0
	dev.LensFlare.Elements        = *flareElems
	dev.LensFlare.Seed            = uint32(*flareSeed)
	dev.ToneMap.WhitePoint        = float32(*whitePoint)
	dev.ToneMap.Gamma             = float32(*gamma)
	dev.Sharpen.Strength          = float32(*sharpen)
	dev.Sharpen.Active            = *sharpen>0
	return dev
}

// Perform the develop command on the given file patterns
func cmdDevelop(args []string, c *ops.Context) error {
	dev:=makePipeline()

	m,err:=json.MarshalIndent(dev,"", "  ")
	if err!=nil { return err }
	if *jsonDump {
		fmt.Fprintf(c.Log, "%s\n", string(m))
		return nil
	}
	fmt.Fprintf(c.Log, "\nDeveloping frames with these settings:\n%s\n", string(m))

	opLoadMany:=ops.NewOpLoadMany(args)
	promises, err:=opLoadMany.MakePromises(nil, c)
	if err!=nil { return err }

	promises, err=dev.MakePromises(promises, c)
	if err!=nil { return err }

	// materialize one frame at a time so eye adaptation sees the frames in order
	_, err=ops.MaterializeAll(promises, 1, true)
	return err
}

// Perform the synth command: generate procedural frames and save them with
// sidecar metadata, ready to be developed.
func cmdSynth(c *ops.Context) error {
	opSynth:=synth.NewOpSynth(*frames, *synWidth, *synHeight, uint32(*seed))
	opSynth.Noise=float32(*noise)
	opSave:=ops.NewOpSave(*out, true)

	seq:=ops.NewOpSequence(opSynth, opSave)
	m,err:=json.MarshalIndent(seq,"", "  ")
	if err!=nil { return err }
	if *jsonDump {
		fmt.Fprintf(c.Log, "%s\n", string(m))
		return nil
	}
	fmt.Fprintf(c.Log, "\nSynthesizing %d frames with these settings:\n%s\n", *frames, string(m))

	promises, err:=seq.MakePromises(nil, c)
	if err!=nil { return err }

	// synth frames are independent, materialize them in parallel
	_, err=ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}
