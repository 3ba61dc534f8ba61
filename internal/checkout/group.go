package checkout

import "github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/model"

// ProductGroup reúne as variações de um mesmo produto para exibição no
// cardápio. O preço exibido é o menor entre as variações.
type ProductGroup struct {
	Name              string
	DisplayPriceCents int64
	Variants          []model.Product
}

// GroupProducts agrupa os produtos pela chave antes do ":" preservando a
// ordem de aparição. Produtos sem variação formam grupos de um item.
func GroupProducts(products []model.Product) []ProductGroup {
	var groups []ProductGroup
	index := make(map[string]int)

	for _, p := range products {
		key := GroupKey(p.Name)
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, ProductGroup{
				Name:              key,
				DisplayPriceCents: p.PriceCents,
				Variants:          []model.Product{p},
			})
			continue
		}
		groups[i].Variants = append(groups[i].Variants, p)
		if p.PriceCents < groups[i].DisplayPriceCents {
			groups[i].DisplayPriceCents = p.PriceCents
		}
	}

	return groups
}
