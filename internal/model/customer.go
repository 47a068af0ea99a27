// Package model はドメインモデルを定義する。
package model

import "time"

// Customer は電話番号で一意に識別される来店客を表す。
// PhoneNumberは数字のみに正規化済みで、作成後は変更しない。
type Customer struct {
	ID          string
	Name        string
	PhoneNumber string
	Visits      int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CustomerStats は管理画面に表示する集計値を表す。
type CustomerStats struct {
	TotalCustomers int
	TotalVisits    int
}

// AverageVisits は顧客1人あたりの平均来店回数を返す。顧客がいない場合は0。
func (s CustomerStats) AverageVisits() float64 {
	if s.TotalCustomers == 0 {
		return 0
	}
	return float64(s.TotalVisits) / float64(s.TotalCustomers)
}
