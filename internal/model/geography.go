package model

type Wilaya struct {
	Code   string `json:"code" db:"code" yaml:"code"`
	Name   string `json:"name" db:"name" yaml:"name"`
	ArName string `json:"ar_name" db:"ar_name" yaml:"ar_name"`
	Cities []City `json:"cities,omitempty" db:"-" yaml:"cities"`
}

type City struct {
	ID         int64  `json:"id" db:"id" yaml:"id"`
	Name       string `json:"name" db:"name" yaml:"name"`
	ArName     string `json:"ar_name" db:"ar_name" yaml:"ar_name"`
	WilayaCode string `json:"wilaya_code" db:"wilaya_code" yaml:"-"`
}
