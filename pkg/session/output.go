package session

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Output is an open container: a format context plus the IO context
// backing it when the format writes to a file, with teardown tracked by
// an astikit.Closer.
type Output struct {
	*astikit.Closer
	*astiav.FormatContext
}

// NewOutput opens a container at the given path; the format is guessed
// from the file extension.
func NewOutput(
	ctx context.Context,
	path string,
) (*Output, error) {
	if path == "" {
		return nil, fmt.Errorf("the provided output path is empty")
	}

	output := &Output{
		Closer: astikit.NewCloser(),
	}

	formatContext, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil {
		return nil, fmt.Errorf("allocating output format context failed: %w", err)
	}
	if formatContext == nil {
		return nil, fmt.Errorf("unable to allocate the output format context")
	}
	output.FormatContext = formatContext
	output.Closer.Add(output.FormatContext.Free)

	if !output.FormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		logger.Tracef(ctx, "destination '%s' is a file", path)
		ioContext, err := astiav.OpenIOContext(
			path,
			astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
			nil,
			nil,
		)
		if err != nil {
			if closeErr := output.Closer.Close(); closeErr != nil {
				logger.Errorf(ctx, "unable to free the output format context: %v", closeErr)
			}
			return nil, fmt.Errorf("opening io context failed: %w", err)
		}
		output.Closer.Add(func() {
			err := ioContext.Close()
			if err != nil {
				logger.Errorf(ctx, "unable to close the IO context: %v", err)
			}
		})
		output.FormatContext.SetPb(ioContext)
	}

	return output, nil
}

// NeedsGlobalHeader reports whether the container format requires
// stream-level (global) codec headers instead of in-band ones.
func (o *Output) NeedsGlobalHeader() bool {
	return o.FormatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
}
