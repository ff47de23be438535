package transform

// ProductURLTemplate links a product code to its page on the public site
const ProductURLTemplate = "http://world-en.openfoodfacts.org/product/{code}"

// englishTags derives a "<base>_en" column from "<base>_tags", keeping English tags
func englishTags(base string) Rule {
	return LocaleTags(base+"_en", base+"_tags", "en")
}

// FoodFacts returns the rules that map the raw product dataset onto the
// Open Food Facts CSV export layout. A fresh slice is returned on each call.
func FoodFacts() []Rule {
	return []Rule{
		Cast("code", "code", CastFloat, OnErrorNull, nil),
		Format("url", ProductURLTemplate),
		Passthrough("creator"),
		Cast("created_t", "created_t", CastInt, OnErrorNull, nil),
		Cast("created_datetime", "created_t", CastString, OnErrorNull, nil),
		Cast("last_modified_t", "last_modified_t", CastInt, OnErrorNull, nil),
		Cast("last_modified_datetime", "last_modified_t", CastString, OnErrorNull, nil),
		Passthrough("last_modified_by"),
		JSONFirst("product_name", "product_name", "text"),
		Passthrough("quantity"),
		JSONFirst("packaging", "packagings", "material"),
		Passthrough("packaging_tags"),
		{Name: "packaging_en", Kind: KindJSONFirst, Source: "packagings", Field: "material", Strip: "en:"},
		Passthrough("brands"),
		Passthrough("brands_tags"),
		Passthrough("categories"),
		Passthrough("categories_tags"),
		englishTags("categories"),
		Constant("origins", ""),
		Passthrough("origins_tags"),
		englishTags("origins"),
		Passthrough("manufacturing_places"),
		Passthrough("manufacturing_places_tags"),
		Passthrough("labels"),
		Passthrough("labels_tags"),
		englishTags("labels"),
		Passthrough("emb_codes"),
		Passthrough("emb_codes_tags"),
		Constant("countries", "en:france"),
		Passthrough("countries_tags"),
		englishTags("countries"),
		Coalesce("ingredients_text", "", "ingredients_text"),
		Constant("additives_n", 0),
		JSONFirst("nova_group", "nova_groups_tags", ""),
		Constant("pnns_groups_1", "unknown"),
		Constant("pnns_groups_2", "unknown"),
		JSONFirst("food_groups", "food_groups_tags", ""),
		Passthrough("food_groups_tags"),
		englishTags("food_groups"),
		Passthrough("states_tags"),
		Column("states_en", "states_tags"),
		Cast("ecoscore_score", "ecoscore_score", CastInt, OnErrorDefault, 0),
		Passthrough("ecoscore_grade"),
		Digits("product_quantity", "quantity"),
		Constant("unique_scans_n", 0),
		Passthrough("completeness"),
		Cast("last_image_t", "last_image_t", CastInt, OnErrorNull, nil),
		Cast("last_image_datetime", "last_image_t", CastString, OnErrorNull, nil),
	}
}

// FoodFactsRuleSet wraps FoodFacts for serialization
func FoodFactsRuleSet() RuleSet {
	return RuleSet{Version: 1, Rules: FoodFacts()}
}
