package models

// Tables lists every model migrated at startup.
var Tables = []interface{}{
	&Category{},
	&Product{},
	&Customer{},
	&CartItem{},
	&Order{},
	&OrderItem{},
	&Sale{},
	&Review{},
	&Notification{},
}
