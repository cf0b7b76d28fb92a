package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/usef/app"
	"github.com/kilianp07/usef/config"
	"github.com/kilianp07/usef/core/model"
)

var (
	sendRole   string
	sendDomain string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Exchange related commands",
}

var sendTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test message to a counterpart",
	RunE:  runSendTest,
}

func init() {
	sendTestCmd.Flags().StringVar(&sendRole, "role", "", "recipient role")
	sendTestCmd.Flags().StringVar(&sendDomain, "domain", "", "recipient domain")
	_ = sendTestCmd.MarkFlagRequired("role")
	_ = sendTestCmd.MarkFlagRequired("domain")
	sendCmd.AddCommand(sendTestCmd)
	rootCmd.AddCommand(sendCmd)
}

func runSendTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	role, ok := model.ParseRole(sendRole)
	if !ok {
		return fmt.Errorf("role %q is not a USEF role", sendRole)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	recipient := model.Participant{Role: role, Domain: sendDomain}
	if err := svc.SendTestMessage(cmd.Context(), recipient); err != nil {
		return err
	}
	cmd.Printf("test message sent to %s\n", recipient)
	return nil
}
