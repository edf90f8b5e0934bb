package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"curator/internal/services"
)

// Exit codes let scripts branch on the failure class without parsing text.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitCollision = 3
	exitNotFound  = 4
	exitProvider  = 5
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitCode(err error) int {
	switch services.FailureKind(err) {
	case services.KindValidation, services.KindParse:
		return exitUsage
	case services.KindCollision:
		return exitCollision
	case services.KindNotFound:
		return exitNotFound
	case services.KindProvider, services.KindAmbiguous:
		return exitProvider
	default:
		return exitFailure
	}
}
