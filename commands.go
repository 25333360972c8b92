package main

import (
	"fmt"

	"github.com/giwty/ndecrypt/logger"
	"github.com/giwty/ndecrypt/rom"
	"github.com/giwty/ndecrypt/settings"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "ndecrypt",
		Short:        "Encrypt and decrypt NDS, NDSi and 3DS ROM images in place",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("keyfile", "", "path to keys.bin, or aes_keys.txt with --citra (default: next to the executable)")
	flags.Bool("citra", false, "read the key file in citra aes_keys.txt format")
	flags.String("nds-seed", "", "path to the NDS key table seed dump, required whenever NDS/NDSi files are processed (default: nds_seed.bin next to the executable)")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("no-summary", false, "do not print the summary table")

	rootCmd.AddCommand(
		newModeCmd(rom.Decrypt, "d"),
		newModeCmd(rom.Encrypt, "e"),
	)
	return rootCmd
}

func newModeCmd(mode rom.Mode, alias string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     mode.String() + " [--dev] <file|dir>...",
		Aliases: []string{alias},
		Short:   fmt.Sprintf("%v ROM files, directories are processed recursively", mode),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, mode, args)
		},
	}
	cmd.Flags().Bool("dev", false, "use development keys (3DS only)")
	return cmd
}

func run(cmd *cobra.Command, mode rom.Mode, args []string) error {
	workingFolder, err := settings.GetWorkingFolder()
	if err != nil {
		return fmt.Errorf("failed to get working folder: %w", err)
	}

	settingsObj, err := settings.ReadSettings(workingFolder, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	sugar := logger.GetSugar(workingFolder, settingsObj.Debug)
	defer logger.Defer()
	sugar.Infof("[%v] working folder %v, key file %v", mode, workingFolder, settingsObj.KeyFile)

	return CreateConsole(workingFolder, settingsObj, sugar).Start(mode, args)
}
