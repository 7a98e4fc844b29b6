package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andradeandrey/mkvmux/internal/buffer"
	"github.com/andradeandrey/mkvmux/internal/cluster"
	"github.com/andradeandrey/mkvmux/internal/ebml/fake"
	"github.com/andradeandrey/mkvmux/internal/mxlog"
	"github.com/andradeandrey/mkvmux/internal/packet"
)

// muxRecord is one line of the JSON-lines packet script the mux command
// reads: a minimal stand-in for a real packetizer, since the EBML writer and
// demuxer/encoder front ends are not part of this repository. It exists to
// drive the core end-to-end from the command line against the in-memory
// fake EBML sink.
type muxRecord struct {
	Track        string `json:"track"`
	TrackType    string `json:"track_type"` // video, audio, subtitle
	Timecode     int64  `json:"timecode"`
	Duration     int64  `json:"duration"`
	BRef         int64  `json:"bref"` // -1 means absent
	FRef         int64  `json:"fref"`
	Data         string `json:"data"` // base64
	GapFollowing bool   `json:"gap_following"`
	CueStrategy  string `json:"cue_strategy"` // none, iframes, all, sparse
}

func cueStrategyFromName(name string) packet.CueStrategy {
	switch name {
	case "iframes":
		return packet.CueIFrames
	case "all":
		return packet.CueAll
	case "sparse":
		return packet.CueSparse
	case "none":
		return packet.CueNone
	default:
		return packet.CueUnspecified
	}
}

func trackTypeFromName(name string) packet.TrackType {
	switch name {
	case "video":
		return packet.TrackVideo
	case "audio":
		return packet.TrackAudio
	case "subtitle":
		return packet.TrackSubtitle
	default:
		return packet.TrackUnknown
	}
}

// cliTrack is a minimal packet.TrackRef for the mux command's demo driver.
type cliTrack struct {
	name        string
	trackType   packet.TrackType
	cueCreation packet.CueStrategy
	lastCueTC   packet.Timecode
	freeRefs    packet.Timecode
}

func newCLITrack(name string, typ packet.TrackType, strategy packet.CueStrategy) *cliTrack {
	return &cliTrack{name: name, trackType: typ, cueCreation: strategy, lastCueTC: -1, freeRefs: -1}
}

func (t *cliTrack) TrackType() packet.TrackType                { return t.trackType }
func (t *cliTrack) DefaultDuration() packet.Timecode           { return 0 }
func (t *cliTrack) TrackEntry() packet.TrackEntry              { return t.name }
func (t *cliTrack) CueCreation() packet.CueStrategy            { return t.cueCreation }
func (t *cliTrack) LastCueTimecode() packet.Timecode           { return t.lastCueTC }
func (t *cliTrack) SetLastCueTimecode(tc packet.Timecode)      { t.lastCueTC = tc }
func (t *cliTrack) FreeRefs() packet.Timecode                  { return t.freeRefs }
func (t *cliTrack) SetFreeRefs(tc packet.Timecode)             { t.freeRefs = tc }
func (t *cliTrack) ContainsGap() bool                          { return false }
func (t *cliTrack) LacingEnabled() bool                        { return true }
func (t *cliTrack) ReferenceTimecodeTolerance() packet.Timecode { return 0 }

var (
	muxInputPath  string
	muxOutputPath string
)

var muxCmd = &cobra.Command{
	Use:   "mux",
	Short: "Feed a JSON-lines packet script through the Cluster Helper",
	Long: "mux reads a JSON-lines packet script (one packet per line) and runs it\n" +
		"through the Cluster Helper against the in-memory fake EBML sink,\n" +
		"reporting progress per ingested packet. It is a demo/test driver: the\n" +
		"real packetizer and EBML encoder are out of scope for this repository.",
	RunE: runMux,
}

func init() {
	muxCmd.Flags().StringVar(&muxInputPath, "input", "", "path to the JSON-lines packet script (required)")
	muxCmd.Flags().StringVar(&muxOutputPath, "output", "", "path to write the rendered output to (required)")
	muxCmd.MarkFlagRequired("input")
	muxCmd.MarkFlagRequired("output")
}

func runMux(cmd *cobra.Command, args []string) error {
	if err := loadConfigFile(cmd); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	in, err := os.Open(muxInputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(muxOutputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	records, err := readRecords(in)
	if err != nil {
		return err
	}

	core := cluster.New(clusterConfig(), fake.Factory{}, struct{}{}, &fake.Cues{})
	core.SetOutput(fake.NewWriter(out))
	core.SetLogger(mxlog.New(flags.verbosity))

	tracks := map[string]*cliTrack{}
	bar := progressbar.Default(int64(len(records)), "muxing packets")

	for _, rec := range records {
		tr, ok := tracks[rec.Track]
		if !ok {
			tr = newCLITrack(rec.Track, trackTypeFromName(rec.TrackType), cueStrategyFromName(rec.CueStrategy))
			tracks[rec.Track] = tr
		}

		data, err := base64.StdEncoding.DecodeString(rec.Data)
		if err != nil {
			return fmt.Errorf("track %s @ %d: decode data: %w", rec.Track, rec.Timecode, err)
		}

		pkt := &packet.Packet{
			Data:             buffer.New(data, false),
			Source:           tr,
			Timecode:         packet.Timecode(rec.Timecode),
			AssignedTimecode: packet.Timecode(rec.Timecode),
			Duration:         packet.Timecode(rec.Duration),
			BRef:             packet.Timecode(rec.BRef),
			FRef:             packet.Timecode(rec.FRef),
			GapFollowing:     rec.GapFollowing,
		}
		pkt.UnmodifiedDuration = pkt.Duration

		if err := core.AddPacket(pkt); err != nil {
			return fmt.Errorf("track %s @ %d: %w", rec.Track, rec.Timecode, err)
		}
		bar.Add(1)
	}

	if _, err := core.Render(true); err != nil {
		return fmt.Errorf("final render: %w", err)
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
		"done: %d clusters, %d bytes, duration %d\n",
		core.ClusterCount(), core.BytesInFile(), int64(core.GetDuration()))
	return nil
}

func readRecords(r io.Reader) ([]muxRecord, error) {
	var records []muxRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec muxRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse packet record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
