package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	catalogapp "github.com/shopfront/backend/internal/application/catalog"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var seedSizes = []string{"S", "M", "L", "XL"}

// ProductCreator is the part of the product service seeding uses
type ProductCreator interface {
	Create(ctx context.Context, req catalogapp.CreateProductRequest) (*catalogapp.ProductResponse, error)
}

func seedCmd(open func() (*env, error)) *cobra.Command {
	var (
		count    int
		seed     uint64
		maxStock int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a fake catalog with stocked variants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			defer e.Close()

			inventory := inventoryapp.NewInventoryService(
				persistence.NewGormTransactionScope(e.db.DB, nil),
				persistence.NewGormMovementRepository(e.db.DB),
				persistence.NewGormStockRepository(e.db.DB),
				inventoryapp.Options{LowStockThreshold: e.cfg.Inventory.LowStockThreshold},
			)
			products := catalogapp.NewProductService(
				persistence.NewGormProductRepository(e.db.DB),
				inventory,
				persistence.NewGormOrderRepository(e.db.DB),
				e.log,
			)

			created, err := seedCatalog(cmd.Context(), products, gofakeit.New(seed), count, maxStock)
			fmt.Fprintf(cmd.OutOrStdout(), "created %d products\n", created)
			return err
		},
	}
	cmd.Flags().IntVar(&count, "products", 20, "number of products to create")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 picks one")
	cmd.Flags().IntVar(&maxStock, "max-stock", 50, "upper bound of initial stock per variant")
	return cmd
}

// seedCatalog creates n active products, each with one variant per size in
// a single color. It stops at the first failure and reports how many were
// created.
func seedCatalog(ctx context.Context, products ProductCreator, f *gofakeit.Faker, n, maxStock int) (int, error) {
	if maxStock < 0 {
		maxStock = 0
	}
	for i := range n {
		name := f.ProductName()
		color := f.Color()
		skuBase := strings.ToUpper(f.LetterN(3)) + fmt.Sprintf("%04d", f.Number(0, 9999))

		req := catalogapp.CreateProductRequest{
			Name:        name,
			Description: f.ProductDescription(),
			Category:    strings.ToLower(f.ProductCategory()),
			Brand:       f.Company(),
			BasePrice:   decimal.NewFromFloat(f.Price(5, 250)).Round(2),
			Tags:        []string{strings.ToLower(f.Adjective()), strings.ToLower(color)},
			Activate:    true,
		}
		for _, size := range seedSizes {
			req.Variants = append(req.Variants, catalogapp.CreateVariantRequest{
				SKU:          fmt.Sprintf("%s-%s-%s", skuBase, strings.ToUpper(color[:min(3, len(color))]), size),
				Size:         size,
				Color:        color,
				InitialStock: f.Number(0, maxStock),
			})
		}

		if _, err := products.Create(ctx, req); err != nil {
			return i, fmt.Errorf("create product %q: %w", name, err)
		}
	}
	return n, nil
}
