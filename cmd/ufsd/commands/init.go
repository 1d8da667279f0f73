package commands

import (
	"fmt"

	"github.com/marmos91/ufsd/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Create an annotated configuration file with default values.

Without --config the file is written to the default location at
$XDG_CONFIG_HOME/ufsd/config.yaml.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var configPath string
	var err error

	if GetConfigFile() != "" {
		configPath = GetConfigFile()
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the daemon with: ufsd start")
	fmt.Printf("  3. Or specify a custom config: ufsd start --config %s\n", configPath)
	return nil
}
