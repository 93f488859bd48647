package cli

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/menta2k/video-altitude/internal/utils"
	"github.com/menta2k/video-altitude/pkg/frame"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/processing"
	"github.com/menta2k/video-altitude/pkg/types"
)

type describer interface {
	Describe(ctx context.Context, img image.Image) (string, error)
}

func newFrameCmd(r *Root) *cobra.Command {
	var (
		frameNumber int
		seconds     float64
		outPath     string
		infoOnly    bool
		describe    bool
	)

	cmd := &cobra.Command{
		Use:   "frame <video>",
		Short: "Extract a still frame from a video with ffmpeg",
		Long: `Extract one frame to measure the reference object in.

Pick the frame by number with --frame or by time with --time. With --info
the video is only probed and a few frames worth looking at are suggested.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			video := args[0]
			w := cmd.OutOrStdout()
			if utils.IsImageFile(video) {
				return fmt.Errorf("%s is already a frame, measure it with 'video-altitude estimate'", video)
			}
			ex := r.newExtractor(r.cfg, r.log)
			if err := ex.Available(); err != nil {
				return err
			}

			info, err := ex.Probe(ctx, video)
			if err != nil {
				return err
			}
			if infoOnly {
				fmt.Fprintf(w, "Video:      %s\n", info.Path)
				fmt.Fprintf(w, "Resolution: %dx%d\n", info.Width, info.Height)
				fmt.Fprintf(w, "Frame rate: %.3f fps\n", info.FPS)
				fmt.Fprintf(w, "Frames:     %d (%.2f s)\n", info.FrameCount, info.Duration)
				fmt.Fprintf(w, "Suggested:  %v\n", info.SuggestedFrames())
				return nil
			}

			byTime := cmd.Flags().Changed("time")
			n := frameNumber
			if byTime {
				n = int(seconds * info.FPS)
			}
			if outPath == "" {
				if err := utils.EnsureDir(r.cfg.Output.Dir); err != nil {
					return err
				}
				outPath = filepath.Join(r.cfg.Output.Dir, frame.DefaultFrameName(video, n))
			}

			var path string
			if byTime {
				path, err = ex.ExtractFrameAt(ctx, video, seconds, outPath)
			} else {
				path, err = ex.ExtractFrame(ctx, video, frameNumber, outPath)
			}
			if err != nil {
				return err
			}
			img, err := r.est.LoadFrame(path)
			if err != nil {
				return err
			}
			fi := r.est.FrameInfo(img)
			fmt.Fprintf(w, "Frame %d (%dx%d) saved to %s\n", n, fi.Width, fi.Height, path)

			if describe {
				d, ok := r.locator.(describer)
				if !ok {
					return fmt.Errorf("vision backend %q cannot describe frames", r.cfg.Vision.Backend)
				}
				text, err := d.Describe(ctx, img)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "\n%s\n", text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&frameNumber, "frame", "f", 0, "frame number to extract")
	cmd.Flags().Float64VarP(&seconds, "time", "t", 0, "timestamp in seconds to extract")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output image path (default: output dir)")
	cmd.Flags().BoolVar(&infoOnly, "info", false, "only probe the video")
	cmd.Flags().BoolVar(&describe, "describe", false, "ask the vision model to describe the frame")
	cmd.MarkFlagsMutuallyExclusive("frame", "time")

	return cmd
}

func newGridCmd(r *Root) *cobra.Command {
	var (
		realSize  float64
		pixelSize float64
		gsd       float64
		gridCM    float64
		hint      string
		outPath   string
		loupe     bool
	)

	cmd := &cobra.Command{
		Use:   "grid <frame>",
		Short: "Draw a debug grid at the measured GSD over a frame",
		Long: `Draw a grid whose squares are --grid-cm on the ground over the frame.

If the squares do not line up with objects of known size on the ground the
measurement is off. The GSD comes from --gsd, from --real-size over
--pixel-size, or from --real-size and the located reference object, which is
then outlined. --loupe also saves a zoomed crop of the reference.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]
			w := cmd.OutOrStdout()

			img, err := r.openFrame(ctx, path)
			if err != nil {
				return err
			}
			if gridCM == 0 {
				gridCM = r.cfg.Grid.DebugGridCM
			}
			if hint == "" {
				hint = r.cfg.Vision.Hint
			}

			var box *types.Box
			if gsd == 0 {
				px := pixelSize
				if px == 0 {
					sel, err := r.est.Locate(ctx, img, hint)
					if err != nil {
						return err
					}
					px, box = sel.PixelSizePx, &sel.Box
				}
				res, err := geometry.ComputeGSD(realSize, px)
				if err != nil {
					return err
				}
				gsd = res.GSDCmPerPx
			}

			overlay, grid, err := r.est.GridOverlay(img, gsd, gridCM, box)
			if err != nil {
				return err
			}

			out := r.cfg.Output
			if outPath == "" {
				if err := utils.EnsureDir(out.Dir); err != nil {
					return err
				}
				outPath = utils.GenerateOutputFilename(path, out.Dir, "_grid", out.Format)
			}
			proc := processing.NewProcessor()
			if err := proc.SaveImage(overlay, outPath, utils.GetFileExtension(outPath), out.Quality, out.Lossless); err != nil {
				return err
			}
			fi := r.est.FrameInfo(img)
			fmt.Fprintf(w, "Frame: %dx%d\n", fi.Width, fi.Height)
			fmt.Fprintf(w, "GSD:   %.4f cm/px\n", grid.GSDCmPerPx)
			fmt.Fprintf(w, "Grid:  %.0f cm squares of %.1f px\n", grid.GridCM, grid.BoxSizePx)
			fmt.Fprintf(w, "Saved %s\n", outPath)

			if loupe && box != nil {
				crop, err := r.est.Loupe(img, *box, r.cfg.Grid.LoupePadding, r.cfg.Grid.LoupeZoom)
				if err != nil {
					return err
				}
				loupePath := utils.GenerateOutputFilename(path, filepath.Dir(outPath), "_loupe", out.Format)
				if err := proc.SaveImage(crop, loupePath, utils.GetFileExtension(loupePath), out.Quality, out.Lossless); err != nil {
					return err
				}
				fmt.Fprintf(w, "Saved %s\n", loupePath)
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&realSize, "real-size", "r", 0, "real size of the reference object in cm")
	cmd.Flags().Float64VarP(&pixelSize, "pixel-size", "p", 0, "size of the reference object in pixels")
	cmd.Flags().Float64Var(&gsd, "gsd", 0, "ground sample distance in cm/px, skips measuring")
	cmd.Flags().Float64Var(&gridCM, "grid-cm", 0, "grid square size in cm (default from config)")
	cmd.Flags().StringVar(&hint, "hint", "", "description of the reference object for the locator")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output image path (default: output dir)")
	cmd.Flags().BoolVar(&loupe, "loupe", false, "also save a zoomed crop of the located reference")

	return cmd
}
