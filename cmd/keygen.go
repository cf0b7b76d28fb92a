package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/infra/keystore"
)

var (
	keygenSeed   string
	keygenRole   string
	keygenDomain string
	keygenStore  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Derive a signing key pair from a seed",
	Long: "Derives the node's Ed25519 signing key pair from the given seed " +
		"and prints the cs1. public blob counterparts need. With --keystore " +
		"the pair is persisted for the given role and domain.",
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenSeed, "seed", "", "key derivation seed")
	keygenCmd.Flags().StringVar(&keygenRole, "role", "", "participant role (with --keystore)")
	keygenCmd.Flags().StringVar(&keygenDomain, "domain", "", "participant domain (with --keystore)")
	keygenCmd.Flags().StringVar(&keygenStore, "keystore", "", "keystore database to persist into")
	_ = keygenCmd.MarkFlagRequired("seed")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenStore == "" {
		_, blob, err := sign.GenerateKeyPair([]byte(keygenSeed))
		if err != nil {
			return err
		}
		cmd.Println(blob)
		return nil
	}

	role, ok := model.ParseRole(keygenRole)
	if !ok {
		return fmt.Errorf("role %q is not a USEF role", keygenRole)
	}
	if keygenDomain == "" {
		return fmt.Errorf("--domain is required with --keystore")
	}
	store, err := keystore.NewSQLiteStore(keygenStore)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	defer store.Close()
	blob, err := store.StoreLocal(model.Participant{Role: role, Domain: keygenDomain}, []byte(keygenSeed))
	if err != nil {
		return err
	}
	cmd.Println(blob)
	return nil
}
