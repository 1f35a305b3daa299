package testutil

import (
	"github.com/Veraticus/boq-price-match/internal/model"
)

// Catalog returns a small construction price list. IDs are stable so tests
// can compare items read back from storage.
func Catalog() []model.PriceItem {
	return []model.PriceItem{
		{ID: "item-con-025", Code: "CON-025", Description: "Concrete grade 25 in suspended slabs", Unit: "m3", Category: "Concrete Works", Rate: 145},
		{ID: "item-el-104", Code: "EL-104", Description: "Armoured cable 4mm2 2 core XLPE/SWA", Unit: "m", Category: "Electrical", Subcategory: "Cables", Rate: 12.5},
		{ID: "item-exc-010", Code: "EXC-010", Description: "Excavation in trenches not exceeding 1.5m deep", Unit: "m3", Category: "Earthworks", Rate: 18},
		{ID: "item-fin-220", Code: "FIN-220", Description: "Ceramic floor tiles 300x300mm bedded in mortar", Unit: "m2", Category: "Finishes", Keywords: []string{"tiling", "flooring"}, Rate: 32},
		{ID: "item-gw001", Code: "GW001", Description: "Galvanised steel guard rail", Unit: "m", Category: "Metalwork", Rate: 85},
		{ID: "item-pnt-300", Code: "PNT-300", Description: "Emulsion paint two coats to plastered walls", Unit: "m2", Category: "Finishes", Subcategory: "Painting", Rate: 6.4},
		{ID: "item-blk-150", Code: "BLK-150", Description: "Concrete block wall 150mm thick in cement mortar", Unit: "m2", Category: "Masonry", Rate: 38},
	}
}

// Item returns the catalog entry with code, or the zero item.
func Item(code string) model.PriceItem {
	for _, it := range Catalog() {
		if it.Code == code {
			return it
		}
	}
	return model.PriceItem{}
}
