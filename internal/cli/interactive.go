package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/selection"
)

// prompter asks one question per line and re-asks on bad input
type prompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

// ask returns the trimmed answer, or def when the answer is empty
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	answer := strings.TrimSpace(p.sc.Text())
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// askPositive keeps asking until the answer is a number > 0
func (p *prompter) askPositive(label, def string) (float64, error) {
	for {
		answer, err := p.ask(label, def)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err == nil && v > 0 {
			return v, nil
		}
		fmt.Fprintf(p.out, "  %q is not a positive number\n", answer)
	}
}

// askPixels keeps asking until the answer is a whole number >= 1
func (p *prompter) askPixels(label, def string) (int, error) {
	for {
		answer, err := p.ask(label, def)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(answer)
		if err == nil && v >= 1 {
			return v, nil
		}
		fmt.Fprintf(p.out, "  %q is not a whole number of pixels\n", answer)
	}
}

func newInteractiveCmd(r *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Estimate altitude by answering prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			p := &prompter{sc: bufio.NewScanner(cmd.InOrStdin()), out: w}

			names := r.est.Registry().Names()
			fmt.Fprintln(w, "Cameras:")
			for i, name := range names {
				fmt.Fprintf(w, "  %d. %s\n", i+1, name)
			}

			var profile geometry.CameraProfile
			for {
				answer, err := p.ask("Camera (number or name)", r.cfg.Camera.Default)
				if err != nil {
					return err
				}
				if i, err := strconv.Atoi(answer); err == nil && i >= 1 && i <= len(names) {
					answer = names[i-1]
				}
				if profile, err = r.est.Camera(answer); err == nil {
					break
				}
				fmt.Fprintf(w, "  %v\n", err)
			}

			realSize, err := p.askPositive("Reference object size (cm)", "")
			if err != nil {
				return err
			}

			var pixelSize float64
			for {
				answer, err := p.ask("Reference object size (px, or points x1,y1;x2,y2)", "")
				if err != nil {
					return err
				}
				if strings.Contains(answer, ",") {
					pts, perr := parsePoints(answer)
					if perr == nil {
						pixelSize, perr = selection.FromPoints(pts)
					}
					if perr == nil {
						break
					}
					fmt.Fprintf(w, "  %v\n", perr)
					continue
				}
				if v, perr := strconv.ParseFloat(answer, 64); perr == nil && v > 0 {
					pixelSize = v
					break
				}
				fmt.Fprintf(w, "  %q is not a positive number\n", answer)
			}

			widthDef := ""
			if profile.ImageWidthPx > 0 {
				widthDef = strconv.Itoa(profile.ImageWidthPx)
			}
			width, err := p.askPixels("Frame width (px)", widthDef)
			if err != nil {
				return err
			}

			var method geometry.Method
			for {
				answer, err := p.ask("Method (traditional|fov)", r.cfg.Method.String())
				if err != nil {
					return err
				}
				if method, err = geometry.ParseMethod(answer); err == nil {
					break
				}
				fmt.Fprintf(w, "  %v\n", err)
			}

			m := geometry.Measurement{RealSizeCM: realSize, PixelSizePx: pixelSize, ImageWidthPx: width}
			res, err := geometry.Estimate(m, profile, method)
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			printResult(w, profile.Name, m, res)

			answer, err := p.ask("\nDebug grid for a prediction request (cm, empty to skip)", "")
			if err != nil || answer == "" {
				return nil
			}
			gridCM, err := strconv.ParseFloat(answer, 64)
			if err != nil {
				return fmt.Errorf("invalid grid size %q", answer)
			}
			pred, err := videoaltitude.NewPredictionRequest(res, profile, gridCM)
			if err != nil {
				return err
			}
			return printJSON(w, pred)
		},
	}
}
