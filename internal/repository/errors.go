package repository

import "errors"

// ErrNotFound - задача с таким id отсутствует. Любая другая ошибка репозитория считается недоступностью хранилища.
var ErrNotFound = errors.New("задача не найдена")
