package database

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"

	"money-tracker-go-be/models"
	"money-tracker-go-be/textnorm"
)

type seedCategory struct {
	name     string
	icon     string
	color    string
	priority int
}

var expenseCategories = []seedCategory{
	{"Food", "restaurant", "#FF6B6B", 1},
	{"Transport", "directions_car", "#4ECDC4", 2},
	{"Bills", "receipt", "#FFE66D", 3},
	{"Entertainment", "movie", "#A8E6CF", 4},
	{"Shopping", "shopping_bag", "#FF8B94", 5},
	{"Health", "local_hospital", "#C7CEEA", 6},
	{"Education", "school", "#B4A7D6", 7},
	{"Travel", "flight", "#FFD3B6", 8},
	{"Personal Care", "spa", "#FFAAA5", 9},
	{"Gifts & Donations", "card_giftcard", "#FF8C94", 10},
	{"Insurance", "shield", "#A8DADC", 11},
	{"Debt & Credit", "credit_card", "#E63946", 12},
	{"Other", "category", "#95A5A6", 99},
}

var incomeCategories = []seedCategory{
	{"Salary", "payments", "#2ECC71", 1},
	{"Business Income", "business", "#27AE60", 2},
	{"Investment Returns", "trending_up", "#16A085", 3},
	{"Freelance", "laptop", "#1ABC9C", 4},
	{"Rental Income", "home", "#3498DB", 5},
	{"Gifts Received", "redeem", "#9B59B6", 6},
	{"Refunds", "replay", "#34495E", 7},
	{"Other Income", "attach_money", "#95A5A6", 99},
}

// Uncategorized is the display metadata of the fallback category.
var Uncategorized = models.Category{
	Name:      "Uncategorized",
	Type:      models.TransactionExpense,
	IsDefault: true,
	Priority:  100,
	Icon:      "help_outline",
	Color:     "#BDC3C7",
}

type seedRule struct {
	keyword  string
	priority int
}

// Keywords per expense category; lower priority wins.
var defaultRules = map[string][]seedRule{
	"Food": {
		{"GRAB FOOD", 1}, {"GRABFOOD", 1}, {"SHOPEE FOOD", 1}, {"SHOPEEFOOD", 1},
		{"NOW.VN", 1}, {"BAEMIN", 1}, {"GOFOOD", 1},
		{"HIGHLAND", 2}, {"STARBUCKS", 2}, {"PHUC LONG", 2}, {"THE COFFEE HOUSE", 2},
		{"CAFE", 3}, {"NHA HANG", 3}, {"QUAN AN", 3},
	},
	"Transport": {
		{"GRAB", 1}, {"GOJEK", 1}, {"XANH SM", 1},
		{"TAXI", 2}, {"PETROLIMEX", 2}, {"XANG DAU", 2}, {"VIETJET", 2},
		{"VIETNAM AIRLINES", 2}, {"BAMBOO AIRWAYS", 2},
		{"GUI XE", 3}, {"PARKING", 3},
	},
	"Bills": {
		{"TIEN DIEN", 1}, {"EVN", 1}, {"DIEN LUC", 1}, {"TIEN NUOC", 1}, {"CAP NUOC", 1},
		{"INTERNET", 1}, {"VNPT", 1}, {"FPT", 1}, {"VIETTEL", 1}, {"MOBIFONE", 1},
		{"NAP DIEN THOAI", 2},
	},
	"Shopping": {
		{"SHOPEE", 1}, {"LAZADA", 1}, {"TIKI", 1}, {"SENDO", 1}, {"THEGIOIDIDONG", 1},
		{"DIEN MAY XANH", 1}, {"BACH HOA XANH", 1},
		{"VINMART", 2}, {"COOPMART", 2}, {"BIG C", 2}, {"LOTTE", 2}, {"AEON", 2},
	},
	"Entertainment": {
		{"NETFLIX", 1}, {"SPOTIFY", 1}, {"YOUTUBE", 1}, {"CGV", 1}, {"LOTTE CINEMA", 1},
		{"GALAXY", 2}, {"GAME", 2}, {"KARAOKE", 2}, {"GYM", 2}, {"FITNESS", 2}, {"SPA", 2},
	},
	"Health": {
		{"BENH VIEN", 1}, {"HOSPITAL", 1}, {"PHONG KHAM", 1}, {"NHA THUOC", 1}, {"PHARMACY", 1},
		{"PRUDENTIAL", 1}, {"MANULIFE", 1}, {"AIA", 1}, {"BAO HIEM", 2},
	},
	"Education": {
		{"HOC PHI", 1}, {"TUITION", 1}, {"DAI HOC", 1}, {"UNIVERSITY", 1},
		{"UDEMY", 1}, {"COURSERA", 1}, {"FAHASA", 2}, {"SACH", 3},
	},
}

type seedProvider struct {
	name, code, authType, baseURL string
}

var defaultProviders = []seedProvider{
	{"MB Bank", "MBBANK", "sepay", "https://my.sepay.vn/userapi"},
	{"Vietcombank", "VCB", "sepay", "https://my.sepay.vn/userapi"},
	{"Techcombank", "TCB", "sepay", "https://my.sepay.vn/userapi"},
	{"BIDV", "BIDV", "sepay", "https://my.sepay.vn/userapi"},
	{"VPBank", "VPB", "sepay", "https://my.sepay.vn/userapi"},
	{"ACB", "ACB", "sepay", "https://my.sepay.vn/userapi"},
	{"TPBank", "TPB", "sepay", "https://my.sepay.vn/userapi"},
	{"Manual Entry", "MANUAL", "none", "none"},
}

// RuleConfidence maps a rule priority to a pattern confidence.
func RuleConfidence(priority int) float64 {
	return math.Max(0.5, 1-0.1*float64(priority))
}

// SeedDefaults loads the default categories, keyword rules, global keyword
// patterns and bank providers. Running it again changes nothing.
func SeedDefaults(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		byName := map[string]models.Category{}
		for _, group := range []struct {
			typ  models.TransactionType
			list []seedCategory
		}{
			{models.TransactionExpense, expenseCategories},
			{models.TransactionIncome, incomeCategories},
		} {
			for _, sc := range group.list {
				cat, err := seedDefaultCategory(tx, models.Category{
					Name: sc.name, Type: group.typ, IsDefault: true,
					Priority: sc.priority, Icon: sc.icon, Color: sc.color,
				})
				if err != nil {
					return err
				}
				if group.typ == models.TransactionExpense {
					byName[sc.name] = cat
				}
			}
		}

		unc := Uncategorized
		key := models.SystemKeyUncategorized
		unc.SystemKey = &key
		if _, err := seedDefaultCategory(tx, unc); err != nil {
			return err
		}

		for name, rules := range defaultRules {
			cat, ok := byName[name]
			if !ok {
				return fmt.Errorf("seed rules: unknown category %q", name)
			}
			for _, r := range rules {
				if err := seedRuleAndPattern(tx, cat, r); err != nil {
					return err
				}
			}
		}

		for _, p := range defaultProviders {
			var existing models.BankProvider
			err := tx.Where("code = ?", p.code).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find provider %s: %w", p.code, err)
			}
			row := models.BankProvider{Name: p.name, Code: p.code, AuthType: p.authType, APIBaseURL: p.baseURL}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create provider %s: %w", p.code, err)
			}
		}
		return nil
	})
}

func seedDefaultCategory(tx *gorm.DB, c models.Category) (models.Category, error) {
	var existing models.Category
	err := tx.Where("name = ? AND type = ? AND is_default = ? AND user_id IS NULL", c.Name, c.Type, true).
		First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return existing, fmt.Errorf("find category %s: %w", c.Name, err)
	}
	if err := tx.Create(&c).Error; err != nil {
		return c, fmt.Errorf("create category %s: %w", c.Name, err)
	}
	return c, nil
}

func seedRuleAndPattern(tx *gorm.DB, cat models.Category, r seedRule) error {
	var count int64
	if err := tx.Model(&models.CategoryRule{}).
		Where("keyword = ? AND category_id = ?", r.keyword, cat.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("find rule %s: %w", r.keyword, err)
	}
	if count == 0 {
		rule := models.CategoryRule{
			CategoryID:        cat.ID,
			Keyword:           r.keyword,
			KeywordNormalized: textnorm.Normalize(r.keyword),
			Priority:          r.priority,
			IsActive:          true,
		}
		if err := tx.Create(&rule).Error; err != nil {
			return fmt.Errorf("create rule %s: %w", r.keyword, err)
		}
	}

	pattern := textnorm.Normalize(r.keyword)
	// Very short codes match inside unrelated words.
	if len(strings.ReplaceAll(pattern, " ", "")) < 3 {
		return nil
	}
	if err := tx.Model(&models.CategoryPattern{}).
		Where("user_id IS NULL AND pattern = ? AND pattern_type = ? AND category_id = ?", pattern, models.PatternKeyword, cat.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("find pattern %s: %w", pattern, err)
	}
	if count > 0 {
		return nil
	}
	p := models.CategoryPattern{
		Pattern:     pattern,
		PatternType: models.PatternKeyword,
		CategoryID:  cat.ID,
		Confidence:  RuleConfidence(r.priority),
	}
	if err := tx.Create(&p).Error; err != nil {
		return fmt.Errorf("create pattern %s: %w", pattern, err)
	}
	return nil
}
