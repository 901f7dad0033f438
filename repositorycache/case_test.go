package repositorycache

import "testing"

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"User":                 "user",
		"TestUser":             "test_user",
		"HTTPServer":           "http_server",
		"Book2":                "book_2",
		"*model.Author":        "model_author",
		"Page[model.Book]":     "page_model_book",
		"already_snake":        "already_snake",
		"with-dash and  space": "with_dash_and_space",
		"ID":                   "id",
		"V2Beta":               "v_2_beta",
		"getResult[*main.X]":   "get_result_main_x",
	}

	for in, want := range tests {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
