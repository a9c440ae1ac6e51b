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


// Package rest exposes the development pipeline as a JSON web service.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"github.com/gin-gonic/gin"

	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/ops/develop"
	"github.com/mfichtner/afterglow/internal/synth"
)


func Serve(addr string) error {
	return makeRouter().Run(addr)
}

func makeRouter() *gin.Engine {
	r := gin.Default()
	r.GET("/ping", getPing)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/defaults", getDefaults)
			v1.POST("/develop",  postDevelop)
		}
	}
	return r
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

// Returns the default development pipeline as JSON, for clients to adjust
// and post back.
func getDefaults(c *gin.Context) {
	c.JSON(200, develop.NewOpDevelopDefault())
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postDevelopArgs struct {
	FilePatterns []string           `json:"filePatterns"`
	Synth        *synth.OpSynth     `json:"synth"`
	Develop      *develop.OpDevelop `json:"develop"`
}

// Develops frames named by file patterns, or synthesized on the fly, and
// streams the processing log back to the client. Frames materialize strictly
// in sequence order so eye adaptation evolves frame over frame.
func postDevelop(c *gin.Context)  {
	logWriter := c.Writer
	var args postDevelopArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if len(args.FilePatterns)==0 && args.Synth==nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need filePatterns or synth" } )
		return
	}
	if args.Develop==nil {
		args.Develop=develop.NewOpDevelopDefault()
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx:=ops.NewContext(logWriter)

	// turn file patterns or synth parameters into frame promises
	var source ops.Operator
	if args.Synth!=nil {
		source=args.Synth
	} else {
		source=ops.NewOpLoadMany(args.FilePatterns)
	}
	promises, err:=source.MakePromises(nil, ctx)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error preparing frames: %s\n", err.Error())
		return
	}

	promises, err=args.Develop.MakePromises(promises, ctx)
	if err!=nil {
		fmt.Fprintf(logWriter, "Error preparing pipeline: %s\n", err.Error())
		return
	}

	// materialize one frame at a time to keep eye adaptation in frame order
	_, err=ops.MaterializeAll(promises, 1, true)
	if(err!=nil) {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()

	return
}
