package engine

// Selectors locates the console's controls. The defaults match the SEI
// process-control screen; tests and alternate skins override them.
type Selectors struct {
	UsernameInput string
	PasswordInput string
	LoginButton   string

	ProcessControl string
	DetailedView   string
	SortByHandler  string

	Table          string
	AssignedMarker string
	RowCheckbox    string

	AssignCommand string
	HandlerSelect string
	SaveButton    string

	NextPage string
	Logout   string
}

// DefaultSelectors returns the SEI selectors.
func DefaultSelectors() Selectors {
	return Selectors{
		UsernameInput: "#txtUsuario",
		PasswordInput: "#pwdSenha",
		LoginButton:   "#Acessar",

		ProcessControl: "#lnkControleProcessos > img",
		DetailedView:   "#divFiltro > div:nth-child(1) > a",
		SortByHandler:  "#tblProcessosDetalhado > tbody > tr:nth-child(1) > th:nth-child(6) > div > div:nth-child(2) > a > img",

		Table:          "table.infraTable",
		AssignedMarker: ".ancoraSigla",
		RowCheckbox:    "td:first-child div.infraCheckboxDiv input[type='checkbox']",

		AssignCommand: "#divComandos > a:nth-child(3) > img",
		HandlerSelect: "#selAtribuicao",
		SaveButton:    "#sbmSalvar",

		NextPage: "#lnkInfraProximaPaginaInferior",
		Logout:   "#lnkInfraSairSistema > img",
	}
}
