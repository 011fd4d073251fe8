// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - Model catalog CLI command for relay.
//
// Command: models
// Short:   List models the backend can serve
//
// Examples:
//   relay models                List available models
//   relay models --json         Catalog for scripting
package cli

import (
	"context"
	"fmt"
)

// HandleModels handles the "models" command.
func HandleModels(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	gw := NewGateway(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), chatsTimeout)
	defer cancel()

	models, err := gw.ListModels(ctx)
	if err != nil {
		if args.JSON {
			NewJSONErrorResponse("models", err).Print()
		}
		return err
	}

	if args.JSON {
		return NewJSONResponse("models", models).Print()
	}

	if len(models) == 0 {
		fmt.Println("no models available")
		return nil
	}

	fmt.Println(titleStyle.Render("Models"))
	for _, m := range models {
		marker := "  "
		if m.ID == cfg.DefaultModel {
			marker = valueGreenStyle.Render("* ")
		}
		line := fmt.Sprintf("%s%-32s", marker, m.DisplayName())
		if m.Description != "" {
			line += "  " + valueDimStyle.Render(m.Description)
		}
		fmt.Println(line)
	}
	return nil
}
