package categorize

// mccCategories maps common merchant category codes to default category names.
var mccCategories = map[string]string{
	"5411": "Food",          // grocery stores
	"5812": "Food",          // restaurants
	"5814": "Food",          // fast food
	"4121": "Transport",     // taxis
	"4131": "Transport",     // bus lines
	"5541": "Transport",     // service stations
	"5542": "Transport",     // fuel dispensers
	"4900": "Bills",         // utilities
	"4814": "Bills",         // telecom
	"7832": "Entertainment", // cinemas
	"7922": "Entertainment",
	"5999": "Shopping", // misc retail
}

// MCCCategoryName returns the default category name for code.
func MCCCategoryName(code string) (string, bool) {
	name, ok := mccCategories[code]
	return name, ok
}
