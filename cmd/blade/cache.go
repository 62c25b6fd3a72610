package main

import (
	"github.com/spf13/cobra"
)

func newCacheCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage compiled artifacts and @cache entries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove compiled artifacts and, with --store, cached fragments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := s.engine()
			if err != nil {
				return err
			}
			if err := e.Flush(); err != nil {
				return err
			}

			st, closeStore, err := s.store(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			if st != nil {
				if err := st.Clear(cmd.Context()); err != nil {
					return err
				}
			}
			s.logger.Info("cache cleared", "cache_path", s.v.GetString("cache_path"), "store", s.v.GetString("store"))
			return nil
		},
	})
	return cmd
}
