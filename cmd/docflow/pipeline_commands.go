package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/llm"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/record"
)

// kindOf maps a file path to IMAGE or PDF by extension.
func kindOf(path string) (constants.FileKind, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	kind, ok := constants.AllowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
	return kind, nil
}

func newOCRCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr <file>",
		Short: "Print the OCR text of an image or scanned PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			kind, err := kindOf(args[0])
			if err != nil {
				return err
			}
			stage := pipeline.NewTextStage(app.NewOCR(cfg.OCR, ctx.logger), nil, ctx.logger)
			if kind == constants.PDF {
				rast, err := app.NewRasterizer(cfg.PDF, ctx.logger)
				if err != nil {
					return err
				}
				stage.Raster = rast
			}
			text, pages, err := stage.Run(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}
			ctx.logger.Info("ocr.ok", "file", filepath.Base(args[0]), "pages", pages, "text_len", len(text))
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newStructureCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "structure <text-file|->",
		Short: "Send OCR text to the configured model and print the JSON it returns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			completer, closeFn, err := app.NewCompleter(cmd.Context(), cfg.LLM, ctx.logger)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := llm.NewClient(completer, ctx.logger).Structure(cmd.Context(), text)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			if !res.OK() {
				return errors.New(res.Fallback.Error)
			}
			return nil
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var stage bool
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run OCR and structuring on one file and print the flat record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			kind, err := kindOf(args[0])
			if err != nil {
				return err
			}
			proc, closeFn, err := app.NewProcessor(cmd.Context(), cfg, ctx.logger)
			if err != nil {
				return err
			}
			defer closeFn()

			c := common.WithFileName(cmd.Context(), filepath.Base(args[0]))
			out, err := proc.Process(c, kind, args[0])
			if err != nil {
				var appErr *common.AppError
				if errors.As(err, &appErr) && appErr.Details != nil {
					_ = writeJSON(cmd, appErr.Details)
				}
				return err
			}
			if err := writeJSON(cmd, out.Record); err != nil {
				return err
			}
			if !stage {
				return nil
			}
			return ctx.withStores(cmd.Context(), func(stores *app.Stores) error {
				n, err := stores.Staging.InsertBatch(cmd.Context(), []record.Flat{out.Flat})
				if err != nil {
					return err
				}
				ctx.logger.Info("process.staged", "rows", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stage, "stage", false, "Insert the record into the staging store")
	return cmd
}

func readInput(stdin io.Reader, arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no text to structure")
	}
	return string(data), nil
}
