package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/internal/history"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/selection"
	"github.com/menta2k/video-altitude/pkg/types"
	"github.com/menta2k/video-altitude/pkg/validation"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd() *cobra.Command {
	return newRootCmd(NewRoot())
}

func newRootCmd(r *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "video-altitude",
		Short: "Estimate camera altitude from a reference object in a video frame",
		Long: `video-altitude estimates how high a camera was from a reference object of
known size visible in one of its frames. The object's pixel size gives the
ground sample distance (GSD); a pinhole camera model turns it into an altitude
using either the camera's focal length and sensor width or its field of view.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&r.cfgPath, "config", "", "config file (default ~/.config/video-altitude/config.json)")
	pf.StringVar(&r.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides the config")
	pf.StringVar(&r.logFormat, "log-format", "", "log format (text|json), overrides the config")

	rootCmd.AddCommand(newEstimateCmd(r))
	rootCmd.AddCommand(newValidateCmd(r))
	rootCmd.AddCommand(newSensitivityCmd(r))
	rootCmd.AddCommand(newCamerasCmd(r))
	rootCmd.AddCommand(newFrameCmd(r))
	rootCmd.AddCommand(newGridCmd(r))
	rootCmd.AddCommand(newInteractiveCmd(r))
	rootCmd.AddCommand(newServeCmd(r))
	rootCmd.AddCommand(newConfigCmd(r))
	rootCmd.AddCommand(newHistoryCmd(r))
	rootCmd.AddCommand(newVersionCmd(r))

	return rootCmd
}

// measurement is the reference size in pixels and where it came from
type measurement struct {
	pixelSizePx float64
	frameWidth  int
	source      string
	selection   *types.Selection
}

// measure takes the pixel size from the first source given: an explicit
// size, clicked points, a mask image, or the locator run on the frame.
func (r *Root) measure(ctx context.Context, framePath string, pixelSize float64, points, maskPath, hint string) (measurement, error) {
	var (
		m   measurement
		img image.Image
	)
	if framePath != "" {
		var err error
		if img, err = r.openFrame(ctx, framePath); err != nil {
			return m, err
		}
		m.frameWidth = img.Bounds().Dx()
		m.source = framePath
	}

	switch {
	case pixelSize != 0:
		m.pixelSizePx = pixelSize
	case points != "":
		pts, err := parsePoints(points)
		if err != nil {
			return m, err
		}
		if m.pixelSizePx, err = selection.FromPoints(pts); err != nil {
			return m, err
		}
	case maskPath != "":
		mask, err := r.openFrame(ctx, maskPath)
		if err != nil {
			return m, fmt.Errorf("failed to load mask: %w", err)
		}
		res, err := selection.FromMask(mask)
		if err != nil {
			return m, err
		}
		// the box is normalized, so measure it in frame pixels when there is a frame
		b := mask.Bounds()
		if img != nil {
			b = img.Bounds()
		}
		sel, err := selection.Measure(res, b.Dx(), b.Dy())
		if err != nil {
			return m, err
		}
		m.pixelSizePx, m.selection = sel.PixelSizePx, &sel
		if m.frameWidth == 0 {
			m.frameWidth = sel.FrameWidth
		}
	case img != nil:
		sel, err := r.est.Locate(ctx, img, hint)
		if err != nil {
			return m, err
		}
		m.pixelSizePx, m.selection = sel.PixelSizePx, &sel
	default:
		return m, fmt.Errorf("%w: give --pixel-size, --points, --mask or a frame to measure",
			geometry.ErrInvalidMeasurement)
	}
	return m, nil
}

type estimateOutput struct {
	Camera      string                           `json:"camera"`
	Measurement geometry.Measurement             `json:"measurement"`
	Result      geometry.AltitudeResult          `json:"result"`
	AltitudeM   float64                          `json:"altitude_m"`
	Selection   *types.Selection                 `json:"selection,omitempty"`
	Comparison  *geometry.Comparison             `json:"comparison,omitempty"`
	Prediction  *videoaltitude.PredictionRequest `json:"prediction,omitempty"`
	RecordID    string                           `json:"record_id,omitempty"`
}

func newEstimateCmd(r *Root) *cobra.Command {
	var (
		cameraName string
		methodName string
		realSize   float64
		pixelSize  float64
		width      int
		points     string
		maskPath   string
		hint       string
		gridCM     float64
		compare    bool
		record     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "estimate [frame]",
		Short: "Estimate altitude from one reference object",
		Long: `Estimate the camera altitude from a reference object of known size.

The pixel size of the object comes from --pixel-size, from --points clicked
on its outline, from a --mask image, or from locating it in the frame.

Examples:
  # Known pixel size
  video-altitude estimate --real-size 15 --pixel-size 43.4

  # Locate the marker in an extracted frame
  video-altitude estimate DJI_0365_frame_0010.jpg --real-size 15 --hint "15 cm AprilTag"

  # Field of view method with a custom camera from the config
  video-altitude estimate --camera "Survey Rig" --method fov --real-size 15 --pixel-size 43.4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := r.profile(cameraName)
			if err != nil {
				return err
			}
			method, err := r.method(methodName)
			if err != nil {
				return err
			}

			var framePath string
			if len(args) == 1 {
				framePath = args[0]
			}
			if hint == "" {
				hint = r.cfg.Vision.Hint
			}
			ms, err := r.measure(ctx, framePath, pixelSize, points, maskPath, hint)
			if err != nil {
				return err
			}

			m := geometry.Measurement{
				RealSizeCM:   realSize,
				PixelSizePx:  ms.pixelSizePx,
				ImageWidthPx: imageWidth(width, ms.frameWidth, p),
			}
			res, err := geometry.Estimate(m, p, method)
			if err != nil {
				return err
			}

			out := estimateOutput{
				Camera:      p.Name,
				Measurement: m,
				Result:      res,
				AltitudeM:   res.Meters(),
				Selection:   ms.selection,
			}
			if compare {
				cmp, err := geometry.CompareMethods(m, p)
				if err != nil {
					return fmt.Errorf("compare: %w", err)
				}
				out.Comparison = &cmp
			}
			if gridCM > 0 {
				pred, err := videoaltitude.NewPredictionRequest(res, p, gridCM)
				if err != nil {
					return err
				}
				out.Prediction = &pred
			}

			store, err := r.openHistory(record)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				rec := history.Record{
					Source:       ms.source,
					Camera:       p.Name,
					Method:       res.Method,
					RealSizeCM:   m.RealSizeCM,
					PixelSizePx:  m.PixelSizePx,
					ImageWidthPx: m.ImageWidthPx,
					GSDCmPerPx:   res.GSDCmPerPx,
					AltitudeCM:   res.AltitudeCM,
				}
				if ms.selection != nil {
					c := ms.selection.Confidence
					rec.Confidence = &c
				}
				if rec, err = store.Add(ctx, rec); err != nil {
					return err
				}
				out.RecordID = rec.ID
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, out)
			}
			printEstimate(w, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cameraName, "camera", "c", "", "camera profile name (default from config)")
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "altitude method (traditional|fov), default from config")
	cmd.Flags().Float64VarP(&realSize, "real-size", "r", 0, "real size of the reference object in cm")
	cmd.Flags().Float64VarP(&pixelSize, "pixel-size", "p", 0, "size of the reference object in pixels")
	cmd.Flags().IntVarP(&width, "width", "w", 0, "frame width in pixels (default: frame or camera width)")
	cmd.Flags().StringVar(&points, "points", "", "points on the object outline as x1,y1;x2,y2;...")
	cmd.Flags().StringVar(&maskPath, "mask", "", "binary mask image of the object")
	cmd.Flags().StringVar(&hint, "hint", "", "description of the reference object for the locator")
	cmd.Flags().Float64Var(&gridCM, "grid-cm", 0, "debug grid size in cm; adds a prediction request to the output")
	cmd.Flags().BoolVar(&compare, "compare", false, "also run both methods side by side")
	cmd.Flags().BoolVar(&record, "record", false, "record the estimate in the history database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.MarkFlagRequired("real-size")

	return cmd
}

func printEstimate(w io.Writer, out estimateOutput) {
	printResult(w, out.Camera, out.Measurement, out.Result)
	if s := out.Selection; s != nil {
		fmt.Fprintf(w, "Selection:   %s %.0fx%.0f px (confidence %.2f)\n", s.Label, s.WidthPx, s.HeightPx, s.Confidence)
	}
	if c := out.Comparison; c != nil {
		fmt.Fprintf(w, "\nTraditional: %.2f cm\n", c.Traditional.AltitudeCM)
		fmt.Fprintf(w, "FOV:         %.2f cm\n", c.FOV.AltitudeCM)
		status := "methods agree"
		if !c.Agree {
			status = "methods disagree, check the camera profile"
		}
		fmt.Fprintf(w, "Difference:  %.2f%% (%s)\n", c.DifferencePercent, status)
	}
	if out.Prediction != nil {
		fmt.Fprintln(w, "\nPrediction request:")
		printJSON(w, out.Prediction)
	}
	if out.RecordID != "" {
		fmt.Fprintf(w, "Recorded:    %s\n", out.RecordID)
	}
}

func newValidateCmd(r *Root) *cobra.Command {
	var (
		cameraName string
		width      int
		sigma      float64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "validate <objects.json>",
		Short: "Cross-check several reference objects in the same frame",
		Long: `Compute one altitude per reference object and report their spread.

The file holds a JSON array of objects measured along both sides:

  [{"name": "A", "position": "top left",
    "real_length_cm": 15, "real_width_cm": 15,
    "pixel_length_px": 43.4, "pixel_width_px": 43.2}]

An object further than --sigma standard deviations from the others is
flagged as an outlier. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objects, err := readObjects(cmd, args[0])
			if err != nil {
				return err
			}
			p, err := r.profile(cameraName)
			if err != nil {
				return err
			}
			if sigma == 0 {
				sigma = r.cfg.Validation.OutlierSigma
			}

			report, err := r.est.ValidateObjects(p.Name, imageWidth(width, 0, p), objects, validation.Options{OutlierSigma: sigma})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, report)
			}
			printValidation(w, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cameraName, "camera", "c", "", "camera profile name (default from config)")
	cmd.Flags().IntVarP(&width, "width", "w", 0, "frame width in pixels (default: camera width)")
	cmd.Flags().Float64Var(&sigma, "sigma", 0, "outlier threshold in standard deviations (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func readObjects(cmd *cobra.Command, path string) ([]validation.ReferenceObject, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reference objects: %w", err)
	}
	var objects []validation.ReferenceObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to parse reference objects: %w", err)
	}
	return objects, nil
}

func printValidation(w io.Writer, report *validation.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tPOSITION\tGSD (cm/px)\tALTITUDE (cm)\tDEVIATION\tSIGMA\t")
	for _, e := range report.Entries {
		sigma := "-"
		if e.Sigma != nil {
			sigma = fmt.Sprintf("%.2f", *e.Sigma)
		}
		flag := ""
		if e.Outlier {
			flag = "OUTLIER"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.2f\t%+.2f%%\t%s\t%s\n",
			e.Name, e.Position, e.GSDCmPerPx, e.AltitudeCM, e.DeviationPercent, sigma, flag)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nObjects:   %d\n", report.Count)
	fmt.Fprintf(w, "GSD:       %.4f ± %.4f cm/px (CV %.2f%%)\n", report.GSDMean, report.GSDStdDev, report.GSDCV)
	fmt.Fprintf(w, "Altitude:  %.2f ± %.2f cm (CV %.2f%%)\n", report.AltitudeMeanCM, report.AltitudeStdDevCM, report.AltitudeCV)
	fmt.Fprintf(w, "Precision: %s\n", report.Precision())
	if n := len(report.Outliers()); n > 0 {
		fmt.Fprintf(w, "Outliers:  %d beyond %.1f sigma, re-measure them\n", n, report.OutlierSigma)
	}
}

func newSensitivityCmd(r *Root) *cobra.Command {
	var (
		cameraName string
		methodName string
		realSize   float64
		pixelSize  float64
		width      int
		pixelError float64
		grid       []float64
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Show how pixel measurement errors change the altitude",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := r.profile(cameraName)
			if err != nil {
				return err
			}
			method, err := r.method(methodName)
			if err != nil {
				return err
			}
			if pixelError == 0 {
				pixelError = r.cfg.Sensitivity.PixelErrorPx
			}
			if !cmd.Flags().Changed("grid") {
				grid = r.cfg.Sensitivity.Grid
			}

			m := geometry.Measurement{RealSizeCM: realSize, PixelSizePx: pixelSize, ImageWidthPx: imageWidth(width, 0, p)}
			report, err := r.est.Sensitivity(p.Name, m, pixelError, validation.SensitivityOptions{Method: method, Grid: grid})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, report)
			}
			fmt.Fprintf(w, "Baseline: %.2f cm at %.2f px (%s)\n\n", report.Baseline.AltitudeCM, pixelSize, report.Baseline.Method)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "OFFSET (px)\tPIXELS\tALTITUDE (cm)\tCHANGE (cm)\tCHANGE\t")
			for _, s := range report.Steps {
				fmt.Fprintf(tw, "%+.1f\t%.2f\t%.2f\t%+.2f\t%+.2f%%\t\n", s.OffsetPx, s.PixelSizePx, s.AltitudeCM, s.DeltaCM, s.DeltaPercent)
			}
			tw.Flush()
			for _, off := range report.Skipped {
				fmt.Fprintf(w, "skipped %+.1f px: pixel size would not be positive\n", off)
			}
			fmt.Fprintf(w, "\nLargest change: %.2f%%\n", report.MaxDeltaPercent())
			return nil
		},
	}

	cmd.Flags().StringVarP(&cameraName, "camera", "c", "", "camera profile name (default from config)")
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "altitude method (traditional|fov), default from config")
	cmd.Flags().Float64VarP(&realSize, "real-size", "r", 0, "real size of the reference object in cm")
	cmd.Flags().Float64VarP(&pixelSize, "pixel-size", "p", 0, "size of the reference object in pixels")
	cmd.Flags().IntVarP(&width, "width", "w", 0, "frame width in pixels (default: camera width)")
	cmd.Flags().Float64Var(&pixelError, "pixel-error", 0, "pixel error to sweep (default from config)")
	cmd.Flags().Float64SliceVar(&grid, "grid", nil, "extra pixel offsets to sweep, e.g. -5,-2,2,5")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.MarkFlagRequired("real-size")
	cmd.MarkFlagRequired("pixel-size")

	return cmd
}

func newCamerasCmd(r *Root) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cameras [name]",
		Short: "List camera profiles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			profiles := r.est.Registry().Profiles()
			if len(args) == 1 {
				p, err := r.est.Camera(args[0])
				if err != nil {
					return err
				}
				profiles = []geometry.CameraProfile{p}
			}

			if asJSON {
				return printJSON(w, profiles)
			}
			for i, p := range profiles {
				if i > 0 {
					fmt.Fprintln(w)
				}
				printProfile(w, p)
				if p.Name == r.cfg.Camera.Default {
					fmt.Fprintln(w, "  (default)")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
