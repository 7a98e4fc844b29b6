package main

import (
	"encoding/json"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/andradeandrey/mkvmux/internal/cluster"
	"github.com/andradeandrey/mkvmux/internal/ebml"
)

// muxFlags mirrors the Cluster Helper's enumerated configuration surface,
// exposed as persistent flags plus a --config flag accepting a JSON file
// that is merged under the flags.
type muxFlags struct {
	configPath string

	timecodeScale       uint64
	maxNsPerCluster     int64
	maxBlocksPerCluster uint32
	useDurations        bool
	useSimpleBlock      bool
	lacingMode          string
	writeCues           bool
	noLinking           bool
	splitMaxNumFiles    uint32

	verbosity int
}

var flags muxFlags

var rootCmd = &cobra.Command{
	Use:   "mkvmux",
	Short: "Matroska/WebM cluster muxer",
	Long: "mkvmux groups ingested packets into Matroska clusters, decides cluster\n" +
		"and file boundaries, and drives per-track render groups.",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "JSON file with base configuration, merged under flags")
	pf.Uint64Var(&flags.timecodeScale, "timecode-scale", 1_000_000, "nanoseconds per tick")
	pf.Int64Var(&flags.maxNsPerCluster, "max-ns-per-cluster", 5_000_000_000, "max cluster wallclock span, in ns")
	pf.Uint32Var(&flags.maxBlocksPerCluster, "max-blocks-per-cluster", 65535, "max packets per cluster")
	pf.BoolVar(&flags.useDurations, "use-durations", false, "force BlockDuration on every block")
	pf.BoolVar(&flags.useSimpleBlock, "use-simpleblock", true, "allow SimpleBlock encoding where possible")
	pf.StringVar(&flags.lacingMode, "lacing-mode", "auto", "lacing mode: auto, xiph, or ebml")
	pf.BoolVar(&flags.writeCues, "write-cues", true, "maintain a cue (index) table")
	pf.BoolVar(&flags.noLinking, "no-linking", false, "do not link split files via PrevSize/SegmentUID continuity")
	pf.Uint32Var(&flags.splitMaxNumFiles, "split-max-num-files", 0, "stop honoring split points after this many output files (0 = unbounded)")
	pf.IntVarP(&flags.verbosity, "verbose", "v", 0, "trace verbosity level (0 = quiet, 4 = per-packet)")

	rootCmd.AddCommand(muxCmd)
	rootCmd.AddCommand(serveCmd)
}

// configFile is the JSON shape accepted by --config; any field a flag has
// explicitly set overrides the corresponding value loaded here.
type configFile struct {
	TimecodeScale       *uint64 `json:"timecode_scale"`
	MaxNsPerCluster     *int64  `json:"max_ns_per_cluster"`
	MaxBlocksPerCluster *uint32 `json:"max_blocks_per_cluster"`
	UseDurations        *bool   `json:"use_durations"`
	UseSimpleBlock      *bool   `json:"use_simpleblock"`
	LacingMode          *string `json:"lacing_mode"`
	WriteCues           *bool   `json:"write_cues"`
	NoLinking           *bool   `json:"no_linking"`
	SplitMaxNumFiles    *uint32 `json:"split_max_num_files"`
}

func loadConfigFile(cmd *cobra.Command) error {
	if flags.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(flags.configPath)
	if err != nil {
		return err
	}
	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return err
	}

	apply := func(name string, set func()) {
		if !cmd.Flags().Changed(name) {
			set()
		}
	}
	if cf.TimecodeScale != nil {
		apply("timecode-scale", func() { flags.timecodeScale = *cf.TimecodeScale })
	}
	if cf.MaxNsPerCluster != nil {
		apply("max-ns-per-cluster", func() { flags.maxNsPerCluster = *cf.MaxNsPerCluster })
	}
	if cf.MaxBlocksPerCluster != nil {
		apply("max-blocks-per-cluster", func() { flags.maxBlocksPerCluster = *cf.MaxBlocksPerCluster })
	}
	if cf.UseDurations != nil {
		apply("use-durations", func() { flags.useDurations = *cf.UseDurations })
	}
	if cf.UseSimpleBlock != nil {
		apply("use-simpleblock", func() { flags.useSimpleBlock = *cf.UseSimpleBlock })
	}
	if cf.LacingMode != nil {
		apply("lacing-mode", func() { flags.lacingMode = *cf.LacingMode })
	}
	if cf.WriteCues != nil {
		apply("write-cues", func() { flags.writeCues = *cf.WriteCues })
	}
	if cf.NoLinking != nil {
		apply("no-linking", func() { flags.noLinking = *cf.NoLinking })
	}
	if cf.SplitMaxNumFiles != nil {
		apply("split-max-num-files", func() { flags.splitMaxNumFiles = *cf.SplitMaxNumFiles })
	}
	return nil
}

func lacingType(mode string) ebml.LacingType {
	switch mode {
	case "xiph":
		return ebml.LacingXiph
	case "ebml":
		return ebml.LacingEBML
	default:
		return ebml.LacingAuto
	}
}

func clusterConfig() cluster.Config {
	// The helper compares its 1-based file number against the cap, so a
	// literal 0 would disable splitting outright; the flag's "0 = unbounded"
	// contract is translated here.
	splitMax := flags.splitMaxNumFiles
	if splitMax == 0 {
		splitMax = math.MaxUint32
	}
	return cluster.Config{
		Scale:               flags.timecodeScale,
		MaxNsPerCluster:     flags.maxNsPerCluster,
		MaxBlocksPerCluster: flags.maxBlocksPerCluster,
		UseDurations:        flags.useDurations,
		UseSimpleBlock:      flags.useSimpleBlock,
		Lacing:              lacingType(flags.lacingMode),
		WriteCues:           flags.writeCues,
		NoLinking:           flags.noLinking,
		SplitMaxNumFiles:    splitMax,
	}
}
