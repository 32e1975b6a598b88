// Package cli 實作 nutrictl 指令
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

// 結束代碼
const (
	ExitSuccess = 0
	ExitError   = 1
)

type options struct {
	driver   string
	dsn      string
	logLevel string
	offline  bool
	jsonOut  bool
}

// NewRootCommand 建立 nutrictl 根指令
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "nutrictl",
		Short: "Resolve food items to nutrition values from the product catalog",
		Long: "nutrictl resolves food items against the product catalog, rounds totals lines\n" +
			"and manages the catalog database used by the API server.",
		Example: `  nutrictl resolve --file meal.json
  nutrictl resolve --file meal.json --offline --json
  echo "📊 Итого: 464.6 ккал, ..." | nutrictl round
  nutrictl catalog seed --file products.json --kind ready
  nutrictl catalog stats`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			common.InitConsoleLogger(opts.logLevel)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.driver, "driver", "", "catalog driver (sqlite | postgres), overrides config")
	pf.StringVar(&opts.dsn, "dsn", "", "catalog DSN, overrides config")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	pf.BoolVar(&opts.jsonOut, "json", false, "output as JSON")

	root.AddCommand(
		newResolveCommand(opts),
		newRoundCommand(),
		newDayCommand(opts),
		newCatalogCommand(opts),
	)
	return root
}

// Run 執行指令並返回結束代碼
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// loadConfig 讀取設定並套用旗標；withLLM 為 false 時停用模型估算
func (o *options) loadConfig(withLLM bool) (*config.Config, error) {
	v := viper.New()
	if !withLLM {
		v.Set("openrouter.enabled", false)
	}
	if o.driver != "" {
		v.Set("catalog.driver", o.driver)
	}
	if o.dsn != "" {
		v.Set("catalog.dsn", o.dsn)
	}
	return config.Load(v)
}
