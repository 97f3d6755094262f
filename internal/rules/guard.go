package rules

// GlobalAccountFields is the fixed safety field set fetched with every
// account snapshot so the pre-flight guard always has its inputs.
var GlobalAccountFields = []string{
	"trading_blocked",
	"trade_suspended_by_user",
	"pattern_day_trader",
	"daytrade_count",
	"buying_power",
	"cash",
}

// ValidateAccount runs the fixed pre-flight safety checks against a broker
// account snapshot and returns the violated constraints as human-readable
// conflicts. An empty result means the account may trade. Violations are
// reported, never raised: the caller short-circuits the rule block to false
// and surfaces the list for observability.
func ValidateAccount(account map[string]any) []string {
	var conflicts []string

	if truthy(account["trading_blocked"]) {
		conflicts = append(conflicts, "Account is trading blocked.")
	}
	if truthy(account["trade_suspended_by_user"]) {
		conflicts = append(conflicts, "Trades suspended by user.")
	}
	if truthy(account["pattern_day_trader"]) {
		if count, ok := toFloat(account["daytrade_count"]); ok && count >= 3 {
			conflicts = append(conflicts, "Pattern Day Trader limit reached.")
		}
	}
	if bp, ok := toFloat(account["buying_power"]); !ok || bp <= 0 {
		conflicts = append(conflicts, "No buying power available.")
	}
	if cash, ok := toFloat(account["cash"]); !ok || cash <= 0 {
		conflicts = append(conflicts, "No cash available.")
	}

	return conflicts
}
