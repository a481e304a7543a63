package stream

// Catalog returns the Sherpa change-feed streams.
func Catalog() []Driver {
	return []Driver{
		{
			Name:          "changed_items",
			Service:       "ChangedItems",
			ItemPath:      "ResponseValue.ItemCodeToken",
			PrimaryKeys:   []string{"item_code"},
			PageSizeParam: "",
			Fields: []Field{
				{Name: "item_code", Source: "ItemCode", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "item_status", Source: "ItemStatus", Type: TypeString},
			},
		},
		{
			Name:          "changed_orders",
			Service:       "ChangedOrders",
			ItemPath:      "ResponseValue.OrderNumberToken",
			PrimaryKeys:   []string{"order_number"},
			PageSizeParam: "count",
			Fields: []Field{
				{Name: "order_number", Source: "OrderNumber", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "order_status", Source: "OrderStatus", Type: TypeString},
				{Name: "warehouse_code", Source: "WarehouseCode", Type: TypeString},
			},
		},
		{
			Name:          "changed_suppliers",
			Service:       "ChangedSuppliers",
			ItemPath:      "ResponseValue.ClientCodeToken",
			PrimaryKeys:   []string{"supplier_code"},
			PageSizeParam: "count",
			Fields: []Field{
				{Name: "supplier_code", Source: "ClientCode", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				// The feed carries no status; suppliers it reports are active.
				{Name: "supplier_status", Type: TypeString, Default: "Active"},
			},
		},
		{
			Name:          "changed_item_suppliers",
			Service:       "ChangedItemSuppliers",
			ItemPath:      "ResponseValue.SupplierItemCodeToken",
			PrimaryKeys:   []string{"supplier_code", "item_code"},
			PageSizeParam: "count",
			Fields: []Field{
				{Name: "supplier_code", Source: "SupplierCode", Type: TypeString},
				{Name: "supplier_item_code", Source: "SupplierItemCode", Type: TypeString},
				{Name: "item_code", Source: "ItemCode", Type: TypeString},
				{Name: "supplier_description", Source: "SupplierDescription", Type: TypeString},
				{Name: "supplier_stock", Source: "SupplierStock", Type: TypeInteger},
				{Name: "supplier_price", Source: "SupplierPrice", Type: TypeNumber},
				{Name: "preferred", Source: "Preferred", Type: TypeBoolean},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "available_from", Source: "AvailableFrom", Type: TypeDateTime},
				{Name: "supplier_item_status", Source: "SupplierItemStatus", Type: TypeString},
				{Name: "last_modified", Source: "LastModified", Type: TypeDateTime},
				{Name: "min_purchase_qty", Source: "MinPurchaseQty", Type: TypeInteger},
				{Name: "supplier_purchase_qty", Source: "SupplierPurchaseQty", Type: TypeInteger},
				{Name: "supplier_purchase_qty_multiplier", Source: "SupplierPurchaseQtyMultiplier", Type: TypeInteger},
			},
		},
		{
			Name:          "changed_purchases",
			Service:       "ChangedPurchases",
			ItemPath:      "ResponseValue.PurchaseCodeToken",
			PrimaryKeys:   []string{"purchase_code"},
			PageSizeParam: "count",
			Fields: []Field{
				{Name: "purchase_code", Source: "PurchaseCode", Type: TypeString},
				{Name: "order_number", Source: "OrderNumber", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "purchase_status", Source: "PurchaseStatus", Type: TypeString},
				{Name: "warehouse_code", Source: "WarehouseCode", Type: TypeString},
			},
		},
		{
			Name:          "changed_parcels",
			Service:       "ChangedParcels",
			ItemPath:      "ResponseValue.ParcelCodeToken",
			PrimaryKeys:   []string{"parcel_code"},
			PageSizeParam: "count",
			Fields: []Field{
				{Name: "parcel_code", Source: "ParcelCode", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "barcode", Source: "Barcode", Type: TypeString},
				{Name: "order_number", Source: "OrderNumber", Type: TypeString},
				{Name: "parcel_service_code", Source: "ParcelServiceCode", Type: TypeString},
				{Name: "parcel_type_code", Source: "ParcelTypeCode", Type: TypeString},
				{Name: "track_trace_url", Source: "TrackTraceUrl", Type: TypeString},
			},
		},
		{
			Name:          "changed_stock",
			Service:       "ChangedStock",
			ItemPath:      "ResponseValue.ItemStockToken",
			PrimaryKeys:   []string{"item_code", "warehouse_code"},
			PageSizeParam: "maxResult",
			Fields: []Field{
				{Name: "item_code", Source: "ItemCode", Type: TypeString},
				{Name: "available", Source: "Available", Type: TypeInteger},
				{Name: "stock", Source: "Stock", Type: TypeInteger},
				{Name: "reserved", Source: "Reserved", Type: TypeInteger},
				{Name: "item_status", Source: "ItemStatus", Type: TypeString},
				{Name: "token", Source: "Token", Type: TypeInteger},
				{Name: "expected_date", Source: "ExpectedDate", Type: TypeDateTime},
				{Name: "qty_waiting_to_receive", Source: "QtyWaitingToReceive", Type: TypeInteger},
				{Name: "first_expected_date", Source: "FirstExpectedDate", Type: TypeDateTime},
				{Name: "first_expected_qty_waiting_to_receive", Source: "FirstExpectedQtyWaitingToReceive", Type: TypeInteger},
				{Name: "last_modified", Source: "LastModified", Type: TypeDateTime},
				{Name: "avg_purchase_price", Source: "AvgPurchasePrice", Type: TypeNumber},
				{Name: "warehouse_code", Source: "WarehouseCode", Type: TypeString},
				{Name: "cost_price", Source: "CostPrice", Type: TypeNumber},
			},
		},
	}
}
