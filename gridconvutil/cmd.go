/*
Copyright © 2025 the gridconv authors.
This file is part of gridconv.

gridconv is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridconv is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridconv.  If not, see <http://www.gnu.org/licenses/>.
*/


// Package gridconvutil provides the gridconv command line interface.
package gridconvutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	convertSets := []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags(), polygonizeCmd.Flags()}
	readSets := []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags(), polygonizeCmd.Flags(),
		statsCmd.Flags(), sampleCmd.Flags(), aggregateCmd.Flags(), compareCmd.Flags(),
		zonalCmd.Flags(), quicklookCmd.Flags(), mosaicCmd.Flags(), fishnetCmd.Flags()}
	writeSets := []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags(), aggregateCmd.Flags(), mosaicCmd.Flags()}
	reportSets := []*pflag.FlagSet{statsCmd.Flags(), compareCmd.Flags(), zonalCmd.Flags()}

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose turns on debug logging of each conversion stage.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "logfile",
			usage: `
              logfile, if set, is a file that log messages are also
              written to.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "from",
			usage: `
              from overrides the source format inferred from the file
              extension. It can be "netcdf", "raster", or "vector".`,
			defaultVal: "",
			flagsets:   append(convertSets, fishnetCmd.Flags()),
		},
		{
			name: "to",
			usage: `
              to overrides the destination format inferred from the file
              extension. It can be "netcdf", "raster", or "vector".`,
			defaultVal: "",
			flagsets:   append(convertSets, aggregateCmd.Flags(), mosaicCmd.Flags(), fishnetCmd.Flags()),
		},
		{
			name: "selector",
			usage: `
              selector is the NetCDF variable or the 1-based raster band
              to read. By default the only data variable or every band
              is read.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   readSets,
		},
		{
			name: "resampling",
			usage: `
              resampling is the resampling method, "nearest" or "bilinear".`,
			defaultVal: "nearest",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), mosaicCmd.Flags()},
		},
		{
			name: "resolution",
			usage: `
              resolution is the output cell size as "d" or "dx,dy", in
              the units of the output CRS. For vector sources it sets the
              rasterization cell size.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags(), mosaicCmd.Flags(), fishnetCmd.Flags()},
		},
		{
			name: "reproject",
			usage: `
              reproject is the CRS to reproject to, for example
              "EPSG:3857" or a proj4 string.`,
			defaultVal: "",
			flagsets:   append(convertSets, fishnetCmd.Flags()),
		},
		{
			name: "compression",
			usage: `
              compression is the output compression: "none", "deflate",
              or "lzw".`,
			defaultVal: "none",
			flagsets:   writeSets,
		},
		{
			name: "dtype",
			usage: `
              dtype is the output data type, for example "float32" or
              "int16". By default the source data type is kept.`,
			defaultVal: "",
			flagsets:   writeSets,
		},
		{
			name: "nodata",
			usage: `
              nodata is the output nodata value.`,
			defaultVal: "",
			flagsets:   writeSets,
		},
		{
			name: "driver",
			usage: `
              driver is the GDAL driver used to write raster output. By
              default it is chosen from the file extension.`,
			defaultVal: "",
			flagsets:   writeSets,
		},
		{
			name: "clip",
			usage: `
              clip limits the output to the bounds "minx,miny,maxx,maxy".`,
			defaultVal: "",
			flagsets:   convertSets,
		},
		{
			name: "clip-polygon",
			usage: `
              clip-polygon is a vector file whose polygons mask the
              output. Cells outside every polygon become nodata.`,
			defaultVal: "",
			flagsets:   convertSets,
		},
		{
			name: "mask",
			usage: `
              mask is an expression of the cell value 'value'. Cells for
              which it is true become nodata, for example "value < 0".`,
			defaultVal: "",
			flagsets:   convertSets,
		},
		{
			name: "burn",
			usage: `
              burn is the value burned for each rasterized feature: a
              number, an attribute name, or an expression of attributes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags()},
		},
		{
			name: "template",
			usage: `
              template is a grid file whose extent, resolution and CRS
              are used when rasterizing.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), rasterizeCmd.Flags()},
		},
		{
			name: "predicate",
			usage: `
              predicate is an expression of the cell value 'value' that
              selects the cells to polygonize. By default every valid
              cell is selected.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), polygonizeCmd.Flags()},
		},
		{
			name: "step",
			usage: `
              step is the 0-based time step or band used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), polygonizeCmd.Flags(), zonalCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "method",
			usage: `
              method is the aggregation method: "sum", "mean", "min",
              or "max".`,
			defaultVal: "mean",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "report",
			usage: `
              report, if set, is an Excel file the results are also
              saved to.`,
			defaultVal: "",
			flagsets:   reportSets,
		},
		{
			name: "workers",
			usage: `
              workers is the number of batch jobs run at once. Zero uses
              the batch file setting.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{batchCmd.Flags()},
		},
		{
			name: "width",
			usage: `
              width is the image width in inches.`,
			defaultVal: 6.0,
			flagsets:   []*pflag.FlagSet{quicklookCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GRIDCONV")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // The flag is created once and shared.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	Root.AddCommand(versionCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(rasterizeCmd)
	Root.AddCommand(polygonizeCmd)
	Root.AddCommand(variablesCmd)
	Root.AddCommand(statsCmd)
	Root.AddCommand(sampleCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(mosaicCmd)
	Root.AddCommand(fishnetCmd)
	Root.AddCommand(compareCmd)
	Root.AddCommand(zonalCmd)
	Root.AddCommand(quicklookCmd)
	Root.AddCommand(batchCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("gridconv: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// newLogger returns a logger writing to the command's error output and,
// if the logfile option is set, to that file. The returned function
// closes the log file.
func newLogger(cmd *cobra.Command) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.Out = cmd.ErrOrStderr()
	if Cfg.GetBool("verbose") {
		log.Level = logrus.DebugLevel
	}
	if p := Cfg.GetString("logfile"); p != "" {
		f, err := os.Create(os.ExpandEnv(p))
		if err != nil {
			return nil, nil, fmt.Errorf("gridconv: creating log file: %v", err)
		}
		log.Out = io.MultiWriter(cmd.ErrOrStderr(), f)
		return log, func() { f.Close() }, nil
	}
	return log, func() {}, nil
}

// run sets up logging and runs f with a context for the command.
func run(cmd *cobra.Command, f func(ctx context.Context, log logrus.FieldLogger) error) error {
	log, closeLog, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	return f(context.Background(), log)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "gridconv",
	Short: "Convert and analyze gridded and vector geospatial data.",
	Long: `gridconv converts between NetCDF, GDAL raster, and vector (shapefile and
GeoJSON) files, optionally clipping, masking, resampling, and reprojecting
the data on the way, and computes statistics of gridded data.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'GRIDCONV_var' where 'var' is the
name of the variable to be set, with dashes replaced by underscores.
Input and output paths may be gs:// or s3:// URLs, and inputs may also be
http(s):// URLs.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of gridconv.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("gridconv v%s\n", gridconv.Version)
	},
	DisableAutoGenTag: true,
}

// convertRun returns a command function running op on the two file
// arguments with the configured conversion options.
func convertRun(op func(context.Context, logrus.FieldLogger, string, string, *ConvertOptions) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		o, err := convertOptions(Cfg)
		if err != nil {
			return err
		}
		dst, err := checkOutputFile(args[1])
		if err != nil {
			return err
		}
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return op(ctx, log, os.ExpandEnv(args[0]), dst, o)
		})
	}
}

var convertCmd = &cobra.Command{
	Use:   "convert SRC DST",
	Short: "Convert a file to another format.",
	Long: `convert reads SRC and writes DST, choosing the formats from the file
extensions (.nc, .tif, .img, .shp, .geojson) unless --from or --to are set.
Vector sources are rasterized and grid sources are polygonized when the
destination kind requires it. DST is only replaced if the whole conversion
succeeds.`,
	Args:              cobra.ExactArgs(2),
	RunE:              convertRun(Convert),
	DisableAutoGenTag: true,
}

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize SRC DST",
	Short: "Burn vector features into a grid.",
	Long: `rasterize burns the features of the vector file SRC into the grid file DST.
The grid geometry comes from --template or, failing that, from the feature
extent and --resolution.`,
	Args:              cobra.ExactArgs(2),
	RunE:              convertRun(Rasterize),
	DisableAutoGenTag: true,
}

var polygonizeCmd = &cobra.Command{
	Use:   "polygonize SRC DST",
	Short: "Trace grid cells into polygons.",
	Long: `polygonize traces the cells of the grid file SRC selected by --predicate
into polygons, one per connected region, and writes them to the vector file DST.`,
	Args:              cobra.ExactArgs(2),
	RunE:              convertRun(Polygonize),
	DisableAutoGenTag: true,
}

var variablesCmd = &cobra.Command{
	Use:   "variables FILE",
	Short: "List the variables or bands of a file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Variables(ctx, log, cmd.OutOrStdout(), os.ExpandEnv(args[0]))
		})
	},
	DisableAutoGenTag: true,
}

var statsCmd = &cobra.Command{
	Use:   "stats FILE",
	Short: "Print summary statistics of a grid.",
	Long: `stats prints the count, minimum, maximum, sum, mean and standard deviation
of the valid cells of every time step or band of FILE.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Stats(ctx, log, cmd.OutOrStdout(), os.ExpandEnv(args[0]),
				Cfg.GetString("selector"), Cfg.GetString("report"))
		})
	},
	DisableAutoGenTag: true,
}

var sampleCmd = &cobra.Command{
	Use:   "sample FILE X Y",
	Short: "Print grid values at a point.",
	Long: `sample prints the value of every time step or band of FILE in the cell
containing the point (X, Y), given in the CRS of FILE.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := cast.ToFloat64E(args[1])
		if err != nil {
			return fmt.Errorf("gridconv: invalid x coordinate %q", args[1])
		}
		y, err := cast.ToFloat64E(args[2])
		if err != nil {
			return fmt.Errorf("gridconv: invalid y coordinate %q", args[2])
		}
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Sample(ctx, log, cmd.OutOrStdout(), os.ExpandEnv(args[0]), Cfg.GetString("selector"), x, y)
		})
	},
	DisableAutoGenTag: true,
}

// multiRun is convertRun for commands that take one or more sources
// followed by the destination.
func multiRun(op func(context.Context, logrus.FieldLogger, []string, string, *ConvertOptions) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		o, err := convertOptions(Cfg)
		if err != nil {
			return err
		}
		dst, err := checkOutputFile(args[len(args)-1])
		if err != nil {
			return err
		}
		srcs := make([]string, len(args)-1)
		for i, a := range args[:len(args)-1] {
			srcs[i] = os.ExpandEnv(a)
		}
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return op(ctx, log, srcs, dst, o)
		})
	}
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate SRC... DST",
	Short: "Combine the time steps of a grid, or several grids.",
	Long: `aggregate combines every time step or band of a single SRC into one grid
with --method and writes it to DST. Given several sources, which must share
one grid and CRS, it combines them cell by cell and step by step instead,
so that for example monthly files can be summed or averaged.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := Cfg.GetString("method")
		return multiRun(func(ctx context.Context, log logrus.FieldLogger, srcs []string, dst string, o *ConvertOptions) error {
			return Aggregate(ctx, log, srcs, dst, method, o)
		})(cmd, args)
	},
	DisableAutoGenTag: true,
}

var mosaicCmd = &cobra.Command{
	Use:   "mosaic SRC... DST",
	Short: "Merge grids into one covering all of them.",
	Long: `mosaic merges the SRC grids into a single grid covering their union and
writes it to DST. The output uses the CRS of the first source and its cell
size unless --resolution is set. Sources in other CRSs are reprojected with
--resampling. Where sources overlap the last valid value wins.`,
	Args:              cobra.MinimumNArgs(2),
	RunE:              multiRun(Mosaic),
	DisableAutoGenTag: true,
}

var fishnetCmd = &cobra.Command{
	Use:   "fishnet SRC DST",
	Short: "Write the cells of a grid as polygons.",
	Long: `fishnet writes one square polygon per grid cell to the vector file DST,
with "row" and "col" attributes. If SRC is a grid its cells are used. If
SRC is vector data the cells cover its extent at --resolution, after
reprojecting to --reproject if set, and a "within" attribute is 1 for
cells that hold part of a feature.`,
	Args:              cobra.ExactArgs(2),
	RunE:              convertRun(Fishnet),
	DisableAutoGenTag: true,
}

var compareCmd = &cobra.Command{
	Use:   "compare OBSERVED SIMULATED",
	Short: "Measure the agreement of two grids.",
	Long: `compare prints goodness of fit measures, such as NSE, KGE, bias and error,
between the cells of OBSERVED and SIMULATED, which must have the same shape.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Compare(ctx, log, cmd.OutOrStdout(), os.ExpandEnv(args[0]), os.ExpandEnv(args[1]),
				Cfg.GetString("selector"), Cfg.GetString("report"))
		})
	},
	DisableAutoGenTag: true,
}

var zonalCmd = &cobra.Command{
	Use:   "zonal GRID ZONES",
	Short: "Summarize a grid within polygons.",
	Long: `zonal prints statistics of the GRID cells whose centers fall within each
feature of the vector file ZONES.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Zonal(ctx, log, cmd.OutOrStdout(), os.ExpandEnv(args[0]), os.ExpandEnv(args[1]),
				Cfg.GetString("selector"), Cfg.GetInt("step"), Cfg.GetString("report"))
		})
	},
	DisableAutoGenTag: true,
}

var quicklookCmd = &cobra.Command{
	Use:   "quicklook SRC PNG",
	Short: "Render a grid as an image.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return Quicklook(ctx, log, os.ExpandEnv(args[0]), args[1], Cfg.GetString("selector"),
				Cfg.GetInt("step"), Cfg.GetFloat64("width"))
		})
	},
	DisableAutoGenTag: true,
}

var batchCmd = &cobra.Command{
	Use:   "batch JOBFILE",
	Short: "Run the conversions listed in a file.",
	Long: `batch runs the conversions listed in the TOML file JOBFILE, for example:

	Workers = 4

	[[Job]]
	Src = "${DATA}/pm25.nc"
	Dst = "pm25.tif"
	Selector = "PM25"

Each job accepts the options of the convert command, capitalized
(Resolution, ReprojectTo, Compression, ClipPolygon, ...). Repeated jobs run
once; different jobs may not write the same file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, log logrus.FieldLogger) error {
			return RunBatch(ctx, log, args[0], Cfg.GetInt("workers"))
		})
	},
	DisableAutoGenTag: true,
}
